package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettings_MissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Backend != BackendSQS || s.Region != DefaultRegion || s.PollInterval != DefaultPollInterval || s.QueueKey != DefaultQueueKey {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestSaveAndLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	want := DefaultSettings()
	want.Backend = BackendUpstash
	want.RESTURL = "https://eu1.upstash.io"
	want.RESTToken = "tok"
	want.PollInterval = 30

	if err := SaveSettings(path, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("settings file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	s := DefaultSettings()
	s.QueueURL = "https://sqs.us-east-1.amazonaws.com/123/file-queue"
	if err := SaveSettings(path, s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	t.Setenv("TIMELINE_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/env-queue")
	t.Setenv("TIMELINE_REGION", "eu-west-1")
	t.Setenv("TIMELINE_POLL_INTERVAL", "90")

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.QueueURL != "https://sqs.eu-west-1.amazonaws.com/123/env-queue" {
		t.Errorf("QueueURL = %q", got.QueueURL)
	}
	if got.Region != "eu-west-1" {
		t.Errorf("Region = %q", got.Region)
	}
	if got.PollInterval != MaxPollInterval {
		t.Errorf("PollInterval = %d, want clamped %d", got.PollInterval, MaxPollInterval)
	}
}

func TestLoadSettings_IgnoresUnprefixedEnv(t *testing.T) {
	for _, key := range []string{"TIMELINE_REGION", "TIMELINE_ENDPOINT", "TIMELINE_QUEUE_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("REGION", "ap-south-1")
	t.Setenv("ENDPOINT", "http://localhost:4566")
	t.Setenv("QUEUE_URL", "https://sqs.ap-south-1.amazonaws.com/123/other")

	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Region != DefaultRegion {
		t.Errorf("Region = %q, want %q", s.Region, DefaultRegion)
	}
	if s.Endpoint != "" {
		t.Errorf("Endpoint = %q, want empty", s.Endpoint)
	}
	if s.QueueURL != "" {
		t.Errorf("QueueURL = %q, want empty", s.QueueURL)
	}
}

func TestLoadSettings_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("backend = [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestSettings_Interval(t *testing.T) {
	for _, tc := range []struct {
		secs int
		want time.Duration
	}{
		{0, 20 * time.Second},
		{1, 5 * time.Second},
		{15, 15 * time.Second},
		{600, 60 * time.Second},
	} {
		if got := (Settings{PollInterval: tc.secs}).Interval(); got != tc.want {
			t.Errorf("Interval(%d) = %v, want %v", tc.secs, got, tc.want)
		}
	}
}

func TestSettings_Validate(t *testing.T) {
	for _, tc := range []struct {
		name        string
		settings    Settings
		wantMissing []string
		wantReason  bool
	}{
		{
			name:     "SQSComplete",
			settings: Settings{Backend: BackendSQS, QueueURL: "q", AccessKeyID: "k", SecretAccessKey: "s"},
		},
		{
			name:        "SQSMissing",
			settings:    Settings{Backend: BackendSQS, QueueURL: "q", AccessKeyID: "  "},
			wantMissing: []string{"access_key_id", "secret_access_key"},
		},
		{
			name:        "EmptyBackendIsSQS",
			settings:    Settings{},
			wantMissing: []string{"queue_url", "access_key_id", "secret_access_key"},
		},
		{
			name:     "UpstashComplete",
			settings: Settings{Backend: BackendUpstash, RESTURL: "https://x", RESTToken: "t"},
		},
		{
			name:        "UpstashMissingToken",
			settings:    Settings{Backend: BackendUpstash, RESTURL: "https://x"},
			wantMissing: []string{"rest_token"},
		},
		{
			name:       "UnknownBackend",
			settings:   Settings{Backend: "kafka"},
			wantReason: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.settings.Validate()
			if len(tc.wantMissing) == 0 && !tc.wantReason {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if tc.wantReason {
				if ce.Reason == "" {
					t.Fatalf("expected reason, got %+v", ce)
				}
				return
			}
			if strings.Join(ce.Missing, ",") != strings.Join(tc.wantMissing, ",") {
				t.Errorf("missing = %v, want %v", ce.Missing, tc.wantMissing)
			}
		})
	}
}

func TestSettings_Set(t *testing.T) {
	s := DefaultSettings()
	for _, kv := range [][2]string{
		{"backend", "upstash"},
		{"rest_url", "https://eu1.upstash.io/"},
		{"rest_token", "tok"},
		{"poll_interval", "45s"},
	} {
		if err := s.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set(%s): %v", kv[0], err)
		}
	}
	if s.Backend != BackendUpstash || s.RESTURL != "https://eu1.upstash.io" || s.PollInterval != 45 {
		t.Fatalf("unexpected settings: %+v", s)
	}

	for _, kv := range [][2]string{
		{"backend", "kafka"},
		{"poll_interval", "3"},
		{"poll_interval", "soon"},
		{"color", "blue"},
	} {
		if err := s.Set(kv[0], kv[1]); err == nil {
			t.Errorf("Set(%s, %s) should fail", kv[0], kv[1])
		}
	}
}

func TestSettings_Redacted(t *testing.T) {
	s := Settings{SecretAccessKey: "abcdefghij", RESTToken: "xy"}
	r := s.Redacted()
	if strings.Contains(r.SecretAccessKey, "efgh") || r.RESTToken != "****" {
		t.Fatalf("secrets not masked: %+v", r)
	}
	if s.SecretAccessKey != "abcdefghij" {
		t.Fatal("Redacted modified the receiver")
	}
}

func TestWatch_CallsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(path, []byte(`backend = "sqs"`), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, logger, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`backend = "upstash"`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
