package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revisit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("USER", "ada")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "ada", cfg.User)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 20, cfg.Review.DefaultLimit)
	assert.Equal(t, 10, cfg.Review.WeakTopics)
	assert.Equal(t, 4, cfg.Import.SeedConfidence)
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "revisit.db", filepath.Base(cfg.DB.Path))
	assert.Empty(t, cfg.Registry.Sources)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
user: file-user
timezone: Europe/Dublin
db:
  path: /tmp/from-file.db
log:
  level: debug
review:
  default_limit: 5
cache:
  ttl: 30s
registry:
  sources:
    - /notes/leetcode
    - https://github.com/example/solutions.git
`)

	t.Setenv("REVISIT_DB__PATH", "/tmp/from-env.db")
	t.Setenv("REVISIT_REVIEW__WEAK_TOPICS", "3")
	t.Setenv("REVISIT_USER", "env-user")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--user", "flag-user", "--log-format", "json"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "flag-user", cfg.User, "flag beats env")
	assert.Equal(t, "json", cfg.Log.Format, "flag beats default")
	assert.Equal(t, "/tmp/from-env.db", cfg.DB.Path, "env beats file")
	assert.Equal(t, 3, cfg.Review.WeakTopics, "env beats default")
	assert.Equal(t, "debug", cfg.Log.Level, "unset flag keeps file value")
	assert.Equal(t, 5, cfg.Review.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, []string{"/notes/leetcode", "https://github.com/example/solutions.git"}, cfg.Registry.Sources)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Dublin", loc.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"seed confidence above 5", "import:\n  seed_confidence: 7\n"},
		{"unknown log level", "log:\n  level: verbose\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"bad time zone", "timezone: Mars/Olympus\n"},
		{"zero due limit", "review:\n  default_limit: 0\n"},
		{"empty database path", "db:\n  path: \"\"\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}
	var buf bytes.Buffer
	logger := cfg.Logger(&buf)

	logger.Info("dropped")
	logger.Warn("kept", "problem", "two-sum")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"problem":"two-sum"`)
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{
		DB:       DBConfig{Path: filepath.Join(root, "data", "revisit.db")},
		Registry: RegistryConfig{ReposDir: filepath.Join(root, "repos")},
	}
	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, filepath.Join(root, "data"))
	assert.DirExists(t, filepath.Join(root, "repos"))
}
