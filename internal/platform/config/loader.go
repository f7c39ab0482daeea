package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"proscan-server-go/internal/platform/errors"
)

// DefaultPath is used when no path is given on the command line.
const DefaultPath = "config.yaml"

const envPrefix = "PROSCAN_"

// Loader reads the YAML file, applies environment overrides and validates.
type Loader struct {
	path      string
	useDotEnv bool
	lookupEnv func(string) (string, bool)
}

func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultPath
	}
	return &Loader{
		path:      path,
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithEnv replaces the environment lookup (tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

func (l *Loader) Path() string {
	return l.path
}

// Result captures the loaded configuration and whether the file existed.
type Result struct {
	Config   *Config
	Path     string
	FromFile bool
}

// Load returns defaults overlaid with the file (when present) and the
// environment. A missing file is not an error.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	fromFile := false

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "load", "parse "+l.path, err)
		}
		fromFile = true
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrap(errors.KindConfig, "load", "read "+l.path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: l.path, FromFile: fromFile}, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Save writes cfg back as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.KindConfig, "save", "encode", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.KindConfig, "save", "write "+path, err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var bad []string
	num := func(key string, dst *int) {
		v, ok := l.lookupEnv(envPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, envPrefix+key)
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := l.lookupEnv(envPrefix + key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, envPrefix+key)
			return
		}
		*dst = b
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := l.lookupEnv(envPrefix + key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			bad = append(bad, envPrefix+key)
			return
		}
		*dst = d
	}

	str("SERVER_IP", &cfg.Server.IP)
	num("SERVER_PORT", &cfg.Server.Port)
	str("TOKEN_SECRET", &cfg.Server.TokenSecret)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_DIR", &cfg.Log.Dir)
	num("TARGET_FPS", &cfg.Processing.TargetFPS)
	num("SUPPRESSION_WINDOW", &cfg.Processing.SuppressionWindowSeconds)
	dur("STOP_TIMEOUT", &cfg.Processing.StopTimeout)
	flag("AUTOSTART", &cfg.Processing.AutoStart)
	str("CAPTURE_TYPE", &cfg.Capture.Type)
	str("CAPTURE_PATH", &cfg.Capture.Path)
	str("CAPTURE_URL", &cfg.Capture.URL)
	str("CAPTURE_USERNAME", &cfg.Capture.Username)
	str("CAPTURE_PASSWORD", &cfg.Capture.Password)
	str("SAVE_DIR", &cfg.Output.SaveDir)
	str("ORDER_ID", &cfg.Output.OrderID)
	flag("AUTO_EXPORT", &cfg.Output.AutoExport)
	str("DB_PATH", &cfg.Storage.Path)
	flag("REDIS_ENABLED", &cfg.Redis.Enabled)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	if len(bad) > 0 {
		return errors.New(errors.KindConfig, "env", fmt.Sprintf("invalid values for %s", strings.Join(bad, ", ")))
	}
	return nil
}
