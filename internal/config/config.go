// Package config loads revisit settings.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults
//  2. the YAML file passed with --config
//  3. REVISIT_* environment variables (REVISIT_CACHE__TTL -> cache.ttl)
//  4. command-line flags that were set explicitly
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the environment variables read by Load.
const EnvPrefix = "REVISIT_"

// Config is the full runtime configuration.
type Config struct {
	User     string         `koanf:"user" validate:"required"`
	Timezone string         `koanf:"timezone" validate:"omitempty,timezone"`
	DB       DBConfig       `koanf:"db"`
	Log      LogConfig      `koanf:"log"`
	Review   ReviewConfig   `koanf:"review"`
	Import   ImportConfig   `koanf:"import"`
	Cache    CacheConfig    `koanf:"cache"`
	Registry RegistryConfig `koanf:"registry"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ReviewConfig struct {
	DefaultLimit int `koanf:"default_limit" validate:"min=1,max=1000"`
	WeakTopics   int `koanf:"weak_topics" validate:"min=1,max=100"`
}

type ImportConfig struct {
	SeedConfidence int `koanf:"seed_confidence" validate:"min=1,max=5"`
}

type CacheConfig struct {
	Size int           `koanf:"size" validate:"min=1"`
	TTL  time.Duration `koanf:"ttl" validate:"gt=0"`
}

// RegistryConfig lists where solved problems are synced from. Sources are
// local directories or git URLs; git sources are cloned under ReposDir.
type RegistryConfig struct {
	Sources  []string `koanf:"sources" validate:"dive,required"`
	ReposDir string   `koanf:"repos_dir" validate:"required"`
}

// Defaults returns the built-in settings keyed by their dotted paths.
func Defaults() map[string]any {
	dataDir := defaultDataDir()
	return map[string]any{
		"user":                   defaultUser(),
		"timezone":               "",
		"db.path":                filepath.Join(dataDir, "revisit.db"),
		"log.level":              "info",
		"log.format":             "text",
		"review.default_limit":   20,
		"review.weak_topics":     10,
		"import.seed_confidence": 4,
		"cache.size":             1024,
		"cache.ttl":              "5m",
		"registry.sources":       []string{},
		"registry.repos_dir":     filepath.Join(dataDir, "repos"),
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"user":       "user",
	"timezone":   "timezone",
	"db":         "db.path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("user", "", "User whose reviews to work with")
	fs.String("timezone", "", "IANA time zone used for calendar days")
	fs.String("db", "", "Path to the SQLite database file")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (text, json)")
}

// Load builds a Config from defaults, the optional YAML file at path, the
// environment and flags. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps REVISIT_REVIEW__DEFAULT_LIMIT to review.default_limit.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone. An empty Timezone means the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Logger builds the slog logger described by Log, writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	// Level was validated against the names UnmarshalText accepts.
	_ = level.UnmarshalText([]byte(c.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// EnsureDirs creates the parent directory of the database and the repos
// directory.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(c.DB.Path), c.Registry.ReposDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "revisit")
	}
	return ".revisit"
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}
