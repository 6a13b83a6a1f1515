// Package config loads settings from defaults, a YAML file, the environment
// and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/lavariyalabs/snapy/internal/sm2"
)

const envPrefix = "SNAPY_"

type Config struct {
	Database  Database   `koanf:"database"`
	Server    Server     `koanf:"server"`
	Log       Log        `koanf:"log"`
	Sync      Sync       `koanf:"sync"`
	Scheduler sm2.Params `koanf:"scheduler"`
	Reminder  Reminder   `koanf:"reminder"`
	Session   Session    `koanf:"session"`
}

type Database struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	Path   string `koanf:"path" validate:"required"` // SQLite file, always used for the catalog
	DSN    string `koanf:"dsn" validate:"required_if=Driver postgres"`
}

type Server struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type Sync struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

type Reminder struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"min=1m"`
}

type Session struct {
	Limit int `koanf:"limit" validate:"gte=1,lte=500"`
}

func defaults() map[string]any {
	p := sm2.DefaultParams()
	return map[string]any{
		"database.driver":             "sqlite",
		"database.path":               "snapy.db",
		"database.dsn":                "",
		"server.addr":                 ":8080",
		"log.level":                   "info",
		"log.format":                  "text",
		"sync.repos_dir":              ".snapy/repos",
		"scheduler.initial_ease":      p.InitialEase,
		"scheduler.min_ease":          p.MinEase,
		"scheduler.initial_interval":  p.InitialInterval,
		"scheduler.second_interval":   p.SecondInterval,
		"scheduler.max_interval":      p.MaxInterval,
		"scheduler.correct_quality":   p.CorrectQuality,
		"scheduler.incorrect_quality": p.IncorrectQuality,
		"reminder.enabled":            false,
		"reminder.interval":           "1h",
		"session.limit":               20,
	}
}

// flagKeys maps command-line flags onto configuration keys. Flags not listed
// here are actions and never reach the config.
var flagKeys = map[string]string{
	"db":         "database.path",
	"driver":     "database.driver",
	"dsn":        "database.dsn",
	"addr":       "server.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"repos-dir":  "sync.repos_dir",
	"reminders":  "reminder.enabled",
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("db", "snapy.db", "Path to the SQLite database file")
	flags.String("driver", "sqlite", "Progress store driver (sqlite|postgres)")
	flags.String("dsn", "", "PostgreSQL connection string for the progress store")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-level", "info", "Log level (debug|info|warn|error)")
	flags.String("log-format", "text", "Log format (text|json)")
	flags.String("repos-dir", ".snapy/repos", "Directory for cloned git sources")
	flags.Bool("reminders", false, "Enable due-card reminders")
}

// Load builds the configuration. A .env file in the working directory is
// read into the environment first when present.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns SNAPY_SYNC_REPOS_DIR into sync.repos_dir. Only the first
// underscore separates the section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate checks field constraints, including the scheduler parameters.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
