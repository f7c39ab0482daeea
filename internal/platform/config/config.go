package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Log           LogConfig           `yaml:"log" json:"log"`
	Processing    ProcessingConfig    `yaml:"processing" json:"processing"`
	Quality       QualityConfig       `yaml:"quality" json:"quality"`
	Capture       CaptureConfig       `yaml:"capture" json:"capture"`
	Decoder       DecoderConfig       `yaml:"decoder" json:"decoder"`
	Output        OutputConfig        `yaml:"output" json:"output"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	IP   string `yaml:"ip" json:"ip"`
	Port int    `yaml:"port" json:"port"`
	// TokenSecret enables HS256 bearer auth on control routes when non-empty.
	TokenSecret string   `yaml:"token_secret" json:"-"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	// WebDir is an optional static dashboard served at "/".
	WebDir string `yaml:"web_dir" json:"web_dir"`
}

type LogConfig struct {
	Level string `yaml:"log_level" json:"log_level"`
	Dir   string `yaml:"log_dir" json:"log_dir"`
	File  string `yaml:"log_file" json:"log_file"`
}

type ProcessingConfig struct {
	TargetFPS                int           `yaml:"target_fps" json:"target_fps"`
	SuppressionWindowSeconds int           `yaml:"suppression_window_seconds" json:"suppression_window_seconds"`
	StopTimeout              time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
	Annotate                 bool          `yaml:"annotate" json:"annotate"`
	AutoStart                bool          `yaml:"autostart" json:"autostart"`
}

// QualityConfig overrides the grading buckets and defect thresholds.
type QualityConfig struct {
	GradeA        float64 `yaml:"grade_a" json:"grade_a"`
	GradeB        float64 `yaml:"grade_b" json:"grade_b"`
	GradeC        float64 `yaml:"grade_c" json:"grade_c"`
	GradeD        float64 `yaml:"grade_d" json:"grade_d"`
	BlurBelow     float64 `yaml:"blur_below" json:"blur_below"`
	ContrastBelow float64 `yaml:"contrast_below" json:"contrast_below"`
	BrokenBelow   float64 `yaml:"broken_below" json:"broken_below"`
}

type CaptureConfig struct {
	// Type is "directory" or "http".
	Type     string        `yaml:"type" json:"type"`
	Path     string        `yaml:"path" json:"path"`
	Loop     bool          `yaml:"loop" json:"loop"`
	URL      string        `yaml:"url" json:"url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Username string        `yaml:"username" json:"-"`
	Password string        `yaml:"password" json:"-"`
}

type DecoderConfig struct {
	Formats   []string `yaml:"formats" json:"formats"`
	TryHarder bool     `yaml:"try_harder" json:"try_harder"`
	// LinearPadding is the vertical padding in pixels applied to boxes of
	// one-dimensional symbols, which only report a scan line.
	LinearPadding int `yaml:"linear_padding" json:"linear_padding"`
}

type OutputConfig struct {
	SaveDir    string `yaml:"save_dir" json:"save_dir"`
	OrderID    string `yaml:"order_id" json:"order_id"`
	Snapshots  bool   `yaml:"snapshots" json:"snapshots"`
	AutoExport bool   `yaml:"auto_export" json:"auto_export"`
	ReportDir  string `yaml:"report_dir" json:"report_dir"`
	Workers    int    `yaml:"workers" json:"workers"`
	Retries    int    `yaml:"retries" json:"retries"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	// RetentionDays removes history older than this; 0 keeps everything.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Username string `yaml:"username" json:"-"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Stream   string `yaml:"stream" json:"stream"`
	MaxLen   int64  `yaml:"max_len" json:"max_len"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}
