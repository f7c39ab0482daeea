package config

import "time"

// DefaultConfig returns the configuration used when no file is present and
// the base onto which a file is decoded.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:          "0.0.0.0",
			Port:        8090,
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "proscan.log",
		},
		Processing: ProcessingConfig{
			TargetFPS:                15,
			SuppressionWindowSeconds: 3,
			StopTimeout:              2 * time.Second,
			Annotate:                 true,
		},
		Quality: QualityConfig{
			GradeA:        300,
			GradeB:        220,
			GradeC:        150,
			GradeD:        80,
			BlurBelow:     50,
			ContrastBelow: 25,
			BrokenBelow:   0.02,
		},
		Capture: CaptureConfig{
			Type:    "directory",
			Path:    "data/frames",
			Loop:    true,
			Timeout: 3 * time.Second,
		},
		Decoder: DecoderConfig{
			Formats:       []string{"qr_code", "data_matrix", "code_128", "code_39", "ean_13"},
			LinearPadding: 20,
		},
		Output: OutputConfig{
			SaveDir:   "data/captures",
			Snapshots: true,
			ReportDir: "data/reports",
			Workers:   2,
			Retries:   3,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "data/proscan.db",
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Stream: "proscan:scans",
			MaxLen: 10000,
		},
	}
}
