package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/reviewdeck/go-transferutils/network"
	"github.com/reviewdeck/go-transferutils/transfer"
	"gopkg.in/yaml.v3"
)

// Secret is a string that is never printed.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Backend selects the transport.
type Backend string

const (
	BackendHTTP  Backend = "http"
	BackendS3    Backend = "s3"
	BackendMinio Backend = "minio"
)

// Config is the complete configuration of a transfer client.
type Config struct {
	Backend  Backend        `yaml:"backend"`
	HTTP     HTTPConfig     `yaml:"http"`
	S3       S3Config       `yaml:"s3"`
	Minio    MinioConfig    `yaml:"minio"`
	Transfer TransferConfig `yaml:"transfer"`
}

// HTTPConfig configures the multipart upload endpoint.
type HTTPConfig struct {
	BaseURL string            `yaml:"base_url"`
	Token   Secret            `yaml:"token"`
	Headers map[string]string `yaml:"headers"`
}

// S3Config ...
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey Secret `yaml:"secret_access_key"`
}

// MinioConfig ...
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey Secret `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// TransferConfig holds the retry and watchdog settings.
type TransferConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	StallThreshold   time.Duration `yaml:"stall_threshold"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	MaxRetryDelay    time.Duration `yaml:"max_retry_delay"`

	// LargeFileThreshold is a human readable size, like "100MB".
	LargeFileThreshold string `yaml:"large_file_threshold"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	defaults := transfer.DefaultConfig()
	return Config{
		Backend: BackendHTTP,
		Transfer: TransferConfig{
			MaxAttempts:        defaults.MaxAttempts,
			StallThreshold:     defaults.StallThreshold,
			WatchdogInterval:   defaults.WatchdogInterval,
			AttemptTimeout:     defaults.AttemptTimeout,
			MaxRetryDelay:      transfer.DefaultBackoff().Max,
			LargeFileThreshold: "100MB",
		},
	}
}

// Load builds the configuration from the defaults, the optional YAML file at path and the environment, in this order.
func Load(envRepo env.Repository, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(envRepo); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(envRepo env.Repository) error {
	setString := func(key string, target *string) {
		if v := envRepo.Get(key); v != "" {
			*target = v
		}
	}
	setSecret := func(key string, target *Secret) {
		if v := envRepo.Get(key); v != "" {
			*target = Secret(v)
		}
	}
	setDuration := func(key string, target *time.Duration) error {
		v := envRepo.Get(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*target = d
		return nil
	}

	if v := envRepo.Get("TRANSFER_BACKEND"); v != "" {
		c.Backend = Backend(v)
	}

	setString("TRANSFER_API_URL", &c.HTTP.BaseURL)
	setSecret("TRANSFER_API_TOKEN", &c.HTTP.Token)

	setString("AWS_REGION", &c.S3.Region)
	setString("AWS_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	setSecret("AWS_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	setString("TRANSFER_S3_BUCKET", &c.S3.Bucket)
	setString("TRANSFER_S3_PREFIX", &c.S3.Prefix)
	setString("TRANSFER_S3_ENDPOINT", &c.S3.Endpoint)

	setString("TRANSFER_MINIO_ENDPOINT", &c.Minio.Endpoint)
	setString("TRANSFER_MINIO_REGION", &c.Minio.Region)
	setString("TRANSFER_MINIO_BUCKET", &c.Minio.Bucket)
	setString("TRANSFER_MINIO_PREFIX", &c.Minio.Prefix)
	setString("TRANSFER_MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	setSecret("TRANSFER_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	if v := envRepo.Get("TRANSFER_MINIO_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse TRANSFER_MINIO_SECURE: %w", err)
		}
		c.Minio.Secure = secure
	}

	if v := envRepo.Get("TRANSFER_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TRANSFER_MAX_ATTEMPTS: %w", err)
		}
		c.Transfer.MaxAttempts = n
	}
	for key, target := range map[string]*time.Duration{
		"TRANSFER_STALL_THRESHOLD":   &c.Transfer.StallThreshold,
		"TRANSFER_WATCHDOG_INTERVAL": &c.Transfer.WatchdogInterval,
		"TRANSFER_ATTEMPT_TIMEOUT":   &c.Transfer.AttemptTimeout,
		"TRANSFER_MAX_RETRY_DELAY":   &c.Transfer.MaxRetryDelay,
	} {
		if err := setDuration(key, target); err != nil {
			return err
		}
	}
	setString("TRANSFER_LARGE_FILE_THRESHOLD", &c.Transfer.LargeFileThreshold)

	return nil
}

// Validate ...
func (c Config) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("http backend requires a base URL (TRANSFER_API_URL)")
		}
	case BackendS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("s3 backend requires a bucket (TRANSFER_S3_BUCKET) and a region (AWS_REGION)")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("minio backend requires an endpoint (TRANSFER_MINIO_ENDPOINT) and a bucket (TRANSFER_MINIO_BUCKET)")
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}

	transferConfig, err := c.TransferConfig()
	if err != nil {
		return err
	}
	return transferConfig.Validate()
}

// TransferConfig converts the settings to a transfer.Config.
func (c Config) TransferConfig() (transfer.Config, error) {
	cfg := transfer.DefaultConfig()
	cfg.MaxAttempts = c.Transfer.MaxAttempts
	cfg.StallThreshold = c.Transfer.StallThreshold
	cfg.WatchdogInterval = c.Transfer.WatchdogInterval
	cfg.AttemptTimeout = c.Transfer.AttemptTimeout

	backoff := transfer.DefaultBackoff()
	backoff.Max = c.Transfer.MaxRetryDelay
	cfg.Backoff = backoff

	cfg.LargeFileThreshold = 0
	if c.Transfer.LargeFileThreshold != "" {
		size, err := units.FromHumanSize(c.Transfer.LargeFileThreshold)
		if err != nil {
			return transfer.Config{}, fmt.Errorf("parse large file threshold: %w", err)
		}
		cfg.LargeFileThreshold = size
	}

	return cfg, nil
}

// NewTransport creates the transport of the configured backend and the matching destination resolver.
func (c Config) NewTransport(ctx context.Context, logger log.Logger) (network.Transport, network.Resolver, error) {
	switch c.Backend {
	case BackendHTTP:
		transport := network.NewHTTPTransport(network.HTTPConfig{
			Token:   string(c.HTTP.Token),
			Headers: c.HTTP.Headers,
		}, logger)
		return transport, network.ProjectFilesURL(c.HTTP.BaseURL), nil
	case BackendS3:
		transport, err := network.NewS3Transport(ctx, network.S3Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: string(c.S3.SecretAccessKey),
			Endpoint:        c.S3.Endpoint,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create s3 transport: %w", err)
		}
		return transport, network.ObjectPrefix(c.S3.Prefix), nil
	case BackendMinio:
		transport, err := network.NewMinioTransport(network.MinioConfig{
			Endpoint:  c.Minio.Endpoint,
			Region:    c.Minio.Region,
			AccessKey: c.Minio.AccessKey,
			SecretKey: string(c.Minio.SecretKey),
			Bucket:    c.Minio.Bucket,
			Secure:    c.Minio.Secure,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create minio transport: %w", err)
		}
		return transport, network.ObjectPrefix(c.Minio.Prefix), nil
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", c.Backend)
	}
}
