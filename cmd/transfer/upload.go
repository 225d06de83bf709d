package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/reviewdeck/go-transferutils/analytics"
	"github.com/reviewdeck/go-transferutils/config"
	"github.com/reviewdeck/go-transferutils/transfer"
	"github.com/urfave/cli/v2"
)

func upload(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	logger := log.NewLogger()
	logger.EnableDebugLog(c.Bool("verbose"))

	envRepo := env.NewRepository()
	cfg, err := config.Load(envRepo, c.String("config"))
	if err != nil {
		return err
	}

	patterns := c.Args().Slice()
	if len(patterns) == 0 {
		return fmt.Errorf("no files given")
	}
	paths, err := transfer.ExpandPaths(patterns, pathutil.NewPathModifier(), pathutil.NewPathChecker(), logger)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %v", patterns)
	}
	displayName := c.String("name")
	if displayName != "" && len(paths) > 1 {
		return fmt.Errorf("--name can only be used with a single file, %d matched", len(paths))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, resolve, err := cfg.NewTransport(ctx, logger)
	if err != nil {
		return err
	}
	transferConfig, err := cfg.TransferConfig()
	if err != nil {
		return err
	}
	registry, err := transfer.New(transport, resolve, transferConfig, logger)
	if err != nil {
		return err
	}

	destination := c.String("destination")
	for _, pth := range paths {
		if _, err := registry.StartTransferFromPath(pth, destination, displayName, transfer.WithDescription(c.String("description"))); err != nil {
			logger.Errorf("Skipping %s: %s", pth, err)
		}
	}
	if len(registry.List()) == 0 {
		return fmt.Errorf("no transfer could be started")
	}

	var settled []<-chan struct{}

	tracker, err := analytics.NewDefaultSessionTracker(envRepo, logger)
	if err != nil {
		logger.Debugf("Analytics disabled: %s", err)
	} else {
		fn, done := untilSettled(transfer.NewTracker(tracker))
		settled = append(settled, done)
		unsubscribe := registry.Subscribe(fn)
		defer func() {
			unsubscribe()
			tracker.Wait()
		}()
	}

	if !c.Bool("no-progress") {
		bars, err := newProgressBars(registry.List())
		if err != nil {
			logger.Warnf("Progress bars unavailable: %s", err)
		} else {
			fn, done := untilSettled(bars.update)
			settled = append(settled, done)
			unsubscribe := registry.Subscribe(fn)
			defer func() {
				unsubscribe()
				if err := bars.stop(); err != nil {
					logger.Warnf("Failed to stop progress bars: %s", err)
				}
			}()
		}
	}

	go func() {
		<-ctx.Done()
		registry.CancelAll()
	}()

	if err := registry.Wait(context.Background()); err != nil {
		return err
	}
	waitSettled(settled, 5*time.Second)

	return summarize(logger, registry.List(), registry.Stats())
}

// untilSettled wraps fn and closes the returned channel once fn has seen a snapshot in which every transfer finished.
func untilSettled(fn transfer.Subscriber) (transfer.Subscriber, <-chan struct{}) {
	done := make(chan struct{})
	var once sync.Once

	return func(transfers []transfer.Transfer) {
		fn(transfers)

		for _, t := range transfers {
			if !t.Status.Terminal() {
				return
			}
		}
		once.Do(func() { close(done) })
	}, done
}

func waitSettled(settled []<-chan struct{}, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, done := range settled {
		select {
		case <-done:
		case <-timer.C:
			return
		}
	}
}

func summarize(logger log.Logger, transfers []transfer.Transfer, stats transfer.StatsSnapshot) error {
	var uploaded int64
	failed := 0

	logger.Println()
	for _, t := range transfers {
		switch t.Status {
		case transfer.StatusCompleted:
			uploaded += t.Size
			logger.Donef("%s (%s) uploaded in %d attempt(s)", t.Filename, units.HumanSize(float64(t.Size)), t.AttemptCount)
		default:
			failed++
			logger.Errorf("%s: %s", t.Filename, t.Error)
		}
	}

	logger.Printf("Uploaded %d of %d file(s), %s in total", len(transfers)-failed, len(transfers), units.HumanSize(float64(uploaded)))
	logger.Debugf("Attempts: %d, average successful attempt: %s", stats.Attempts, stats.Average)

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d transfer(s) failed", failed), 1)
	}
	return nil
}
