package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proscan-server-go/internal/platform/errors"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoader_Load(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 9000
log:
  log_level: "debug"
processing:
  target_fps: 30
  suppression_window_seconds: 5
  stop_timeout: 1500ms
capture:
  type: http
  url: http://camera.local/snapshot.jpg
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0o644))

	res, err := NewLoader(configFile).WithDotEnv(false).WithEnv(noEnv).Load()
	require.NoError(t, err)

	cfg := res.Config
	assert.True(t, res.FromFile)
	assert.Equal(t, "127.0.0.1", cfg.Server.IP)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Processing.TargetFPS)
	assert.Equal(t, 5, cfg.Processing.SuppressionWindowSeconds)
	assert.Equal(t, 1500*time.Millisecond, cfg.Processing.StopTimeout)
	assert.Equal(t, "http", cfg.Capture.Type)
	// untouched sections keep defaults
	assert.Equal(t, 300.0, cfg.Quality.GradeA)
	assert.Equal(t, "proscan.log", cfg.Log.File)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	res, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).
		WithDotEnv(false).WithEnv(noEnv).Load()
	require.NoError(t, err)

	assert.False(t, res.FromFile)
	assert.Equal(t, 15, res.Config.Processing.TargetFPS)
	assert.Equal(t, 3, res.Config.Processing.SuppressionWindowSeconds)
	assert.Equal(t, 2*time.Second, res.Config.Processing.StopTimeout)
}

func TestLoader_UnknownFieldRejected(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("processing:\n  target_fsp: 10\n"), 0o644))

	_, err := NewLoader(configFile).WithDotEnv(false).WithEnv(noEnv).Load()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"PROSCAN_SERVER_PORT":        "9100",
		"PROSCAN_TARGET_FPS":         "60",
		"PROSCAN_SUPPRESSION_WINDOW": "30",
		"PROSCAN_AUTOSTART":          "true",
		"PROSCAN_ORDER_ID":           "PO-17",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	res, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).
		WithDotEnv(false).WithEnv(lookup).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, res.Config.Server.Port)
	assert.Equal(t, 60, res.Config.Processing.TargetFPS)
	assert.Equal(t, 30, res.Config.Processing.SuppressionWindowSeconds)
	assert.True(t, res.Config.Processing.AutoStart)
	assert.Equal(t, "PO-17", res.Config.Output.OrderID)
}

func TestLoader_EnvInvalidNumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "PROSCAN_TARGET_FPS" {
			return "fast", true
		}
		return "", false
	}
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).
		WithDotEnv(false).WithEnv(lookup).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROSCAN_TARGET_FPS")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "fps lower bound", mutate: func(c *Config) { c.Processing.TargetFPS = 5 }},
		{name: "fps upper bound", mutate: func(c *Config) { c.Processing.TargetFPS = 60 }},
		{name: "fps too low", mutate: func(c *Config) { c.Processing.TargetFPS = 4 }, wantErr: true},
		{name: "fps too high", mutate: func(c *Config) { c.Processing.TargetFPS = 61 }, wantErr: true},
		{name: "window too short", mutate: func(c *Config) { c.Processing.SuppressionWindowSeconds = 0 }, wantErr: true},
		{name: "window too long", mutate: func(c *Config) { c.Processing.SuppressionWindowSeconds = 31 }, wantErr: true},
		{name: "invalid server port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "grades not descending", mutate: func(c *Config) { c.Quality.GradeB = 310 }, wantErr: true},
		{name: "unknown capture", mutate: func(c *Config) { c.Capture.Type = "usb" }, wantErr: true},
		{name: "http without url", mutate: func(c *Config) { c.Capture.Type = "http" }, wantErr: true},
		{name: "redis without stream", mutate: func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Stream = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSave_RoundTripsThroughLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Processing.TargetFPS = 25
	require.NoError(t, Save(path, cfg))

	res, err := NewLoader(path).WithDotEnv(false).WithEnv(noEnv).Load()
	require.NoError(t, err)
	assert.Equal(t, 25, res.Config.Processing.TargetFPS)
}
