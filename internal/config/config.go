package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabasePath string `env:"DATABASE_PATH,default=/var/lib/edge-agent/records.db"`
	DeviceID     string `env:"DEVICE_ID,required=true"`

	CloudBaseURL string `env:"CLOUD_BASE_URL,required=true"`
	CloudAPIKey  string `env:"CLOUD_API_KEY,required=true"`

	ProbeAddress    string `env:"PROBE_ADDRESS,default=1.1.1.1:443"`
	ProbeTTLSeconds int    `env:"PROBE_TTL_SECONDS,default=10"`
	ProbeTimeoutMs  int    `env:"PROBE_TIMEOUT_MILLIS,default=1500"`

	SyncIntervalSeconds int `env:"SYNC_INTERVAL_SECONDS,default=30"`
	SyncBatchSize       int `env:"SYNC_BATCH_SIZE,default=50"`
	SyncParallelism     int `env:"SYNC_PARALLELISM,default=4"`

	MaxRetries            int `env:"MAX_RETRIES,default=8"`
	BaseRetryDelaySeconds int `env:"BASE_RETRY_DELAY_SECONDS,default=5"`
	MaxRetryDelaySeconds  int `env:"MAX_RETRY_DELAY_SECONDS,default=900"`
	InlineTimeoutSeconds  int `env:"INLINE_TIMEOUT_SECONDS,default=5"`
	StaleClaimTimeoutSecs int `env:"STALE_CLAIM_TIMEOUT_SECONDS,default=300"`

	BreakerFailureThreshold int `env:"BREAKER_FAILURE_THRESHOLD,default=5"`
	BreakerResetTimeoutSecs int `env:"BREAKER_RESET_TIMEOUT_SECONDS,default=60"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ProbeTTL() time.Duration {
	return time.Duration(c.ProbeTTLSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c *Config) BaseRetryDelay() time.Duration {
	return time.Duration(c.BaseRetryDelaySeconds) * time.Second
}

func (c *Config) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelaySeconds) * time.Second
}

func (c *Config) InlineTimeout() time.Duration {
	return time.Duration(c.InlineTimeoutSeconds) * time.Second
}

func (c *Config) StaleClaimTimeout() time.Duration {
	return time.Duration(c.StaleClaimTimeoutSecs) * time.Second
}

func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.BreakerResetTimeoutSecs) * time.Second
}
