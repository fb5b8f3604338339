package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds process-level settings for `timeline serve`, read from
// TIMELINE_* variables. Queue settings live in Settings so they can be edited
// and re-read on every poller start.
type Config struct {
	HTTPAddr  string `envconfig:"TIMELINE_HTTP_ADDR" default:":8080"`
	AutoStart bool   `envconfig:"TIMELINE_AUTOSTART" default:"true"`

	// Optional backends: an empty DatabaseURL selects the in-memory store,
	// an empty NATSURL disables notifications and an empty AuthToken
	// disables bearer auth.
	DatabaseURL string `envconfig:"TIMELINE_DATABASE_URL"`
	NATSURL     string `envconfig:"TIMELINE_NATS_URL"`
	AuthToken   string `envconfig:"TIMELINE_AUTH_TOKEN"`

	// Defaults to ~/.local/state/livetimeline/settings.toml.
	SettingsFile string `envconfig:"TIMELINE_SETTINGS_FILE"`

	// Export; an interval of 0 disables it.
	SyncInterval   time.Duration `envconfig:"TIMELINE_SYNC_INTERVAL" default:"0s"`
	SyncS3Bucket   string        `envconfig:"TIMELINE_SYNC_S3_BUCKET"`
	SyncS3Endpoint string        `envconfig:"TIMELINE_SYNC_S3_ENDPOINT"`
	SyncS3Region   string        `envconfig:"TIMELINE_SYNC_S3_REGION" default:"us-east-1"`
	SyncS3Key      string        `envconfig:"TIMELINE_SYNC_S3_KEY" default:"livetimeline/snapshot.jsonl"`
}

func Load() (*Config, error) {
	var c Config
	// Tags carry the full TIMELINE_ names so no unprefixed variable is read.
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("server environment: %w", err)
	}
	if c.SettingsFile == "" {
		path, err := DefaultSettingsPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
		c.SettingsFile = path
	}
	if c.SyncInterval < 0 {
		return nil, fmt.Errorf("TIMELINE_SYNC_INTERVAL must not be negative, got %v", c.SyncInterval)
	}
	return &c, nil
}
