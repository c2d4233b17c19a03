package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"TF_ENV" default:"development"`

	HTTPPort    int           `envconfig:"TF_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"TF_HTTP_TIMEOUT" default:"15s"`

	MaxConcurrentDownloads int           `envconfig:"TF_MAX_CONCURRENT_DOWNLOADS" default:"4"`
	ExpressReservedSlots   int           `envconfig:"TF_EXPRESS_RESERVED_SLOTS" default:"2"`
	StandardMaxSlots       int           `envconfig:"TF_STANDARD_MAX_SLOTS" default:"4"`
	BufferSize             int           `envconfig:"TF_BUFFER_SIZE" default:"100"`
	RefillThreshold        int           `envconfig:"TF_REFILL_THRESHOLD" default:"20"`
	PreemptionCooldown     time.Duration `envconfig:"TF_PREEMPTION_COOLDOWN" default:"60m"`
	DispatchInterval       time.Duration `envconfig:"TF_DISPATCH_INTERVAL" default:"500ms"`

	SearchTimeout time.Duration `envconfig:"TF_SEARCH_TIMEOUT" default:"30s"`
	MaxRetries    int           `envconfig:"TF_MAX_RETRIES" default:"3"`
	RetryBackoff  time.Duration `envconfig:"TF_RETRY_BACKOFF" default:"5s"`

	SearchBaseURL   string        `envconfig:"TF_SEARCH_BASE_URL" default:"http://127.0.0.1:5030"`
	DownloadTimeout time.Duration `envconfig:"TF_DOWNLOAD_TIMEOUT" default:"30m"`
	MaxFileSize     int64         `envconfig:"TF_MAX_FILE_SIZE" default:"524288000"`

	DownloadDir string `envconfig:"TF_DOWNLOAD_DIR" default:"./downloads"`
	DBPath      string `envconfig:"TF_DB_PATH" default:"./tunefetch.db"`

	ShutdownTimeout time.Duration `envconfig:"TF_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"TF_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"TF_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max concurrent downloads must be positive: %d", c.MaxConcurrentDownloads)
	}

	if c.ExpressReservedSlots < 0 || c.ExpressReservedSlots > c.MaxConcurrentDownloads {
		return fmt.Errorf("express reserved slots out of range: %d (max %d)",
			c.ExpressReservedSlots, c.MaxConcurrentDownloads)
	}

	if c.StandardMaxSlots <= 0 {
		return fmt.Errorf("standard max slots must be positive: %d", c.StandardMaxSlots)
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive: %d", c.BufferSize)
	}

	if c.RefillThreshold <= 0 || c.RefillThreshold >= c.BufferSize {
		return fmt.Errorf("refill threshold must be in (0, buffer size): %d", c.RefillThreshold)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", c.MaxRetries)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive: %d", c.MaxFileSize)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	return nil
}
