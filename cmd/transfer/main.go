package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "transfer",
		Usage: "Resumable media uploads with retries and stall detection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"TRANSFER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file loaded before the environment is read",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload files to a destination and wait for every transfer to finish",
				ArgsUsage: "<path or glob pattern>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "destination",
						Aliases:  []string{"d"},
						Usage:    "Destination the files are uploaded to (project ID or object prefix)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name of the uploaded file, only valid with a single file",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Description sent along with every file",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Do not render progress bars",
					},
				},
				Action: upload,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
