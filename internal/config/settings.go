package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Supported queue backends.
const (
	BackendSQS     = "sqs"
	BackendUpstash = "upstash"
)

// Poll interval bounds, in seconds.
const (
	DefaultPollInterval = 20
	MinPollInterval     = 5
	MaxPollInterval     = 60
)

const (
	DefaultRegion   = "us-east-1"
	DefaultQueueKey = "timeline-events"
)

// Settings is the user-editable queue configuration. It is persisted as TOML
// and may be overridden by TIMELINE_* environment variables.
type Settings struct {
	Backend string `toml:"backend" json:"backend" envconfig:"TIMELINE_BACKEND"`

	// SQS
	QueueURL        string `toml:"queue_url" json:"queue_url" envconfig:"TIMELINE_QUEUE_URL"`
	AccessKeyID     string `toml:"access_key_id" json:"access_key_id" envconfig:"TIMELINE_ACCESS_KEY_ID"`
	SecretAccessKey string `toml:"secret_access_key" json:"secret_access_key" envconfig:"TIMELINE_SECRET_ACCESS_KEY"`
	Region          string `toml:"region" json:"region" envconfig:"TIMELINE_REGION"`
	Endpoint        string `toml:"endpoint,omitempty" json:"endpoint,omitempty" envconfig:"TIMELINE_ENDPOINT"` // LocalStack, ElasticMQ

	// Upstash Redis REST
	RESTURL   string `toml:"rest_url" json:"rest_url" envconfig:"TIMELINE_REST_URL"`
	RESTToken string `toml:"rest_token" json:"rest_token" envconfig:"TIMELINE_REST_TOKEN"`
	QueueKey  string `toml:"queue_key" json:"queue_key" envconfig:"TIMELINE_QUEUE_KEY"`

	PollInterval int `toml:"poll_interval" json:"poll_interval" envconfig:"TIMELINE_POLL_INTERVAL"` // seconds
}

// ConfigError reports settings that are missing or invalid for the selected
// backend. Polling never begins while it is returned.
type ConfigError struct {
	Backend string
	Missing []string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return "settings invalid: " + e.Reason
	}
	return fmt.Sprintf("%s settings incomplete: missing %s", e.Backend, strings.Join(e.Missing, ", "))
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings() Settings {
	return Settings{
		Backend:      BackendSQS,
		Region:       DefaultRegion,
		QueueKey:     DefaultQueueKey,
		PollInterval: DefaultPollInterval,
	}
}

// DefaultSettingsPath returns ~/.local/state/livetimeline/settings.toml.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "livetimeline", "settings.toml"), nil
}

// LoadSettings reads the TOML file at path, applies environment overrides and
// fills defaults. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		if _, err := toml.DecodeFile(path, &s); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	// Tags carry the full TIMELINE_ names so no unprefixed variable is read.
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("settings environment: %w", err)
	}
	s.applyDefaults()
	return s, nil
}

// SaveSettings writes s to path, creating the parent directory.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}

func (s *Settings) applyDefaults() {
	if s.Backend == "" {
		s.Backend = BackendSQS
	}
	if s.Region == "" {
		s.Region = DefaultRegion
	}
	if s.QueueKey == "" {
		s.QueueKey = DefaultQueueKey
	}
	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}
	s.PollInterval = clampInterval(s.PollInterval)
}

func clampInterval(secs int) int {
	switch {
	case secs < MinPollInterval:
		return MinPollInterval
	case secs > MaxPollInterval:
		return MaxPollInterval
	}
	return secs
}

// Interval returns the idle wait between empty polls, clamped to 5-60s.
func (s Settings) Interval() time.Duration {
	secs := s.PollInterval
	if secs == 0 {
		secs = DefaultPollInterval
	}
	return time.Duration(clampInterval(secs)) * time.Second
}

// Validate checks that every field the selected backend needs is set.
func (s Settings) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	switch s.Backend {
	case BackendSQS, "":
		require("queue_url", s.QueueURL)
		require("access_key_id", s.AccessKeyID)
		require("secret_access_key", s.SecretAccessKey)
	case BackendUpstash:
		require("rest_url", s.RESTURL)
		require("rest_token", s.RESTToken)
	default:
		return &ConfigError{Backend: s.Backend, Reason: fmt.Sprintf("unknown backend %q (must be %s or %s)", s.Backend, BackendSQS, BackendUpstash)}
	}

	if len(missing) > 0 {
		backend := s.Backend
		if backend == "" {
			backend = BackendSQS
		}
		return &ConfigError{Backend: backend, Missing: missing}
	}
	return nil
}

// Set assigns a field by its TOML key. Used by `timeline settings set`.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "backend":
		if value != BackendSQS && value != BackendUpstash {
			return fmt.Errorf("unknown backend %q (must be %s or %s)", value, BackendSQS, BackendUpstash)
		}
		s.Backend = value
	case "queue_url":
		s.QueueURL = value
	case "access_key_id":
		s.AccessKeyID = value
	case "secret_access_key":
		s.SecretAccessKey = value
	case "region":
		s.Region = value
	case "endpoint":
		s.Endpoint = value
	case "rest_url":
		s.RESTURL = strings.TrimRight(value, "/")
	case "rest_token":
		s.RESTToken = value
	case "queue_key":
		s.QueueKey = value
	case "poll_interval":
		n, err := strconv.Atoi(strings.TrimSuffix(value, "s"))
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		if n < MinPollInterval || n > MaxPollInterval {
			return fmt.Errorf("poll_interval must be between %d and %d seconds, got %d", MinPollInterval, MaxPollInterval, n)
		}
		s.PollInterval = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// Redacted returns a copy safe to print, with secrets masked.
func (s Settings) Redacted() Settings {
	s.SecretAccessKey = mask(s.SecretAccessKey)
	s.RESTToken = mask(s.RESTToken)
	return s
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + strings.Repeat("*", 8)
}
