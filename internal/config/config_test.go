package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("snapy", pflag.ContinueOnError)
	RegisterFlags(flags)
	flags.Bool("serve", false, "")
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected driver sqlite, but got %q", cfg.Database.Driver)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected addr :8080, but got %q", cfg.Server.Addr)
	}
	if cfg.Reminder.Interval != time.Hour {
		t.Errorf("Expected reminder interval 1h, but got %v", cfg.Reminder.Interval)
	}
	if cfg.Scheduler.InitialEase != 2.5 || cfg.Scheduler.SecondInterval != 6 {
		t.Errorf("Expected default scheduler params, but got %+v", cfg.Scheduler)
	}
	if cfg.Session.Limit != 20 {
		t.Errorf("Expected session limit 20, but got %d", cfg.Session.Limit)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapy.yaml")
	yml := `
server:
  addr: ":9000"
log:
  level: debug
scheduler:
  max_interval: 180
session:
  limit: 10
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("SNAPY_LOG_LEVEL", "warn")
	t.Setenv("SNAPY_SYNC_REPOS_DIR", "/var/lib/snapy/repos")
	t.Setenv("SNAPY_SCHEDULER_MIN_EASE", "1.5")

	cfg, err := Load(newFlags(t, "--config", path, "--addr", ":7000", "--serve"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":7000" {
		t.Errorf("Expected the flag to win with :7000, but got %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected the environment to win with warn, but got %q", cfg.Log.Level)
	}
	if cfg.Scheduler.MaxInterval != 180 {
		t.Errorf("Expected max interval 180 from the file, but got %d", cfg.Scheduler.MaxInterval)
	}
	if cfg.Scheduler.MinEase != 1.5 {
		t.Errorf("Expected min ease 1.5, but got %v", cfg.Scheduler.MinEase)
	}
	if cfg.Sync.ReposDir != "/var/lib/snapy/repos" {
		t.Errorf("Expected repos dir from the environment, but got %q", cfg.Sync.ReposDir)
	}
	if cfg.Session.Limit != 10 {
		t.Errorf("Expected session limit 10, but got %d", cfg.Session.Limit)
	}
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "unknown driver", args: []string{"--driver", "mysql"}},
		{name: "postgres without dsn", args: []string{"--driver", "postgres"}},
		{name: "bad log format", args: []string{"--log-format", "xml"}},
		{name: "bad scheduler quality", env: map[string]string{"SNAPY_SCHEDULER_CORRECT_QUALITY": "2"}},
		{name: "short reminder interval", env: map[string]string{"SNAPY_REMINDER_INTERVAL": "10s"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(newFlags(t, tc.args...)); err == nil {
				t.Error("Expected an error, but got nil")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil {
		t.Error("Expected an error for a missing config file, but got nil")
	}
}

func TestEnvKey(t *testing.T) {
	testCases := map[string]string{
		"SNAPY_DATABASE_DSN":           "database.dsn",
		"SNAPY_SYNC_REPOS_DIR":         "sync.repos_dir",
		"SNAPY_SCHEDULER_INITIAL_EASE": "scheduler.initial_ease",
	}
	for in, want := range testCases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q): expected %q, but got %q", in, want, got)
		}
	}
}
