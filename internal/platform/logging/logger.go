package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Module tags used across the service.
const (
	TagBoot    = "BOOT"
	TagScan    = "SCAN"
	TagCapture = "CAPTURE"
	TagHTTP    = "HTTP"
	TagWS      = "WS"
	TagStorage = "STORAGE"
	TagReport  = "REPORT"
	TagRedis   = "REDIS"
	TagConfig  = "CONFIG"
	TagObs     = "OBS"
)

// RetentionDays is how long rotated files are kept.
const RetentionDays = 7

// Config captures logging configuration options.
type Config struct {
	Level    string `yaml:"log_level" json:"log_level"`
	Dir      string `yaml:"log_dir" json:"log_dir"`
	Filename string `yaml:"log_file" json:"log_file"`
}

// Logger writes JSON records to a daily rotated file and coloured lines to
// the console.
type Logger struct {
	cfg         Config
	level       *slog.LevelVar
	fileLogger  *slog.Logger
	console     *slog.Logger
	file        *os.File
	currentDate string
	mu          sync.RWMutex
	ticker      *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// ParseLevel converts a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New opens <Dir>/<Filename> and starts the rotation checker.
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.Filename == "" {
		cfg.Filename = "proscan.log"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := openLogFile(cfg)
	if err != nil {
		return nil, err
	}

	level := &slog.LevelVar{}
	level.Set(ParseLevel(cfg.Level))

	l := &Logger{
		cfg:         cfg,
		level:       level,
		fileLogger:  slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})),
		console:     slog.New(newConsoleHandler(os.Stdout, level)),
		file:        file,
		currentDate: time.Now().Format("2006-01-02"),
		stopCh:      make(chan struct{}),
	}
	l.startRotationChecker()
	return l, nil
}

// NewWriter builds a logger without a file sink; console output goes to w.
// Used by tests and by tools that only need console logging.
func NewWriter(w io.Writer, levelName string) *Logger {
	level := &slog.LevelVar{}
	level.Set(ParseLevel(levelName))
	return &Logger{
		level:   level,
		console: slog.New(newConsoleHandler(w, level)),
		stopCh:  make(chan struct{}),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, "error")
}

func openLogFile(cfg Config) (*os.File, error) {
	path := filepath.Join(cfg.Dir, cfg.Filename)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// SetLevel changes the level at runtime (config hot reload).
func (l *Logger) SetLevel(name string) {
	l.level.Set(ParseLevel(name))
}

func (l *Logger) startRotationChecker() {
	l.ticker = time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-l.ticker.C:
				l.checkAndRotate(time.Now())
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Logger) checkAndRotate(now time.Time) {
	today := now.Format("2006-01-02")
	l.mu.RLock()
	same := today == l.currentDate
	l.mu.RUnlock()
	if same {
		return
	}
	l.rotate(today)
	l.cleanOldLogs(now)
}

// rotate archives the current file as <base>-<date><ext> and reopens.
func (l *Logger) rotate(newDate string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	current := filepath.Join(l.cfg.Dir, l.cfg.Filename)
	ext := filepath.Ext(l.cfg.Filename)
	base := strings.TrimSuffix(l.cfg.Filename, ext)
	archived := filepath.Join(l.cfg.Dir, fmt.Sprintf("%s-%s%s", base, l.currentDate, ext))

	if _, err := os.Stat(current); err == nil {
		if err := os.Rename(current, archived); err != nil {
			l.console.Error("rename log file failed", slog.String("error", err.Error()))
		}
	}

	file, err := openLogFile(l.cfg)
	if err != nil {
		l.console.Error("reopen log file failed", slog.String("error", err.Error()))
		l.file = nil
		l.fileLogger = nil
		return
	}
	l.file = file
	l.currentDate = newDate
	l.fileLogger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: l.level}))
	l.console.Info("log file rotated", slog.String("date", newDate))
}

func (l *Logger) cleanOldLogs(now time.Time) {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		l.console.Error("read log dir failed", slog.String("error", err.Error()))
		return
	}

	cutoff := now.AddDate(0, 0, -RetentionDays)
	ext := filepath.Ext(l.cfg.Filename)
	prefix := strings.TrimSuffix(l.cfg.Filename, ext) + "-"

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		date, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext))
		if err != nil || !date.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.cfg.Dir, name)); err != nil {
			l.console.Error("remove old log failed", slog.String("file", name), slog.String("error", err.Error()))
		}
	}
}

// Close stops rotation and closes the file. Safe to call more than once.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.ticker != nil {
			l.ticker.Stop()
		}
		close(l.stopCh)
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file != nil {
			err = l.file.Close()
			l.file = nil
			l.fileLogger = nil
		}
	})
	return err
}

func (l *Logger) log(level slog.Level, msg string, fields ...any) {
	if l == nil {
		return
	}
	if len(fields) > 0 && strings.Contains(msg, "%") {
		msg = fmt.Sprintf(msg, fields...)
		fields = nil
	}

	var attrs []slog.Attr
	if len(fields) > 0 && fields[0] != nil {
		if m, ok := fields[0].(map[string]any); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				attrs = append(attrs, slog.Any(k, m[k]))
			}
		} else {
			attrs = append(attrs, slog.Any("fields", fields[0]))
		}
	}

	ctx := context.Background()
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fileLogger != nil {
		l.fileLogger.LogAttrs(ctx, level, msg, attrs...)
	}
	l.console.LogAttrs(ctx, level, msg, attrs...)
}

// Debug logs at debug level. Messages containing "%" are printf formatted;
// otherwise a single map[string]any argument becomes sorted attributes.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// FormatLog prefixes message with "[tag] " unless it already carries a tag.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) DebugTag(tag, msg string, args ...any) {
	l.log(slog.LevelDebug, FormatLog(tag, msg), args...)
}

func (l *Logger) InfoTag(tag, msg string, args ...any) {
	l.log(slog.LevelInfo, FormatLog(tag, msg), args...)
}

func (l *Logger) WarnTag(tag, msg string, args ...any) {
	l.log(slog.LevelWarn, FormatLog(tag, msg), args...)
}

func (l *Logger) ErrorTag(tag, msg string, args ...any) {
	l.log(slog.LevelError, FormatLog(tag, msg), args...)
}

// Slog exposes the console logger for structured integrations.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(newConsoleHandler(io.Discard, slog.LevelError))
	}
	return l.console
}
