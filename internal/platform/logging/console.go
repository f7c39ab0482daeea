package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// tagColors maps module tags (the "[TAG]" prefix produced by FormatLog) to
// console colours. Unknown tags fall back to the level colour.
var tagColors = map[string]string{
	TagBoot:    "\x1b[96m",
	TagScan:    "\x1b[92m",
	TagCapture: "\x1b[94m",
	TagHTTP:    "\x1b[95m",
	TagWS:      "\x1b[92m",
	TagStorage: "\x1b[93m",
	TagReport:  "\x1b[97m",
	TagRedis:   "\x1b[91m",
	TagConfig:  "\x1b[96m",
	TagObs:     "\x1b[90m",
}

// consoleHandler renders records as single coloured lines.
type consoleHandler struct {
	writer io.Writer
	level  slog.Leveler
	mu     *sync.Mutex
	attrs  []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Leveler) *consoleHandler {
	return &consoleHandler{writer: w, level: level, mu: &sync.Mutex{}}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s[%s]%s ", colorTime, r.Time.Format("2006-01-02 15:04:05.000"), colorReset)

	msg := r.Message
	if color, ok := tagColors[tagOf(msg)]; ok {
		fmt.Fprintf(&b, "%s%s%s", color, msg, colorReset)
		if r.Level >= slog.LevelWarn {
			fmt.Fprintf(&b, " %s(%s)%s", levelColor(r.Level), r.Level.String(), colorReset)
		}
	} else {
		fmt.Fprintf(&b, "%s[%s]%s %s", levelColor(r.Level), r.Level.String(), colorReset, msg)
	}

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(" {")
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		b.WriteString(" }")
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// Groups are flattened on the console.
func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorError
	case level >= slog.LevelWarn:
		return colorWarn
	case level >= slog.LevelInfo:
		return colorInfo
	default:
		return colorDebug
	}
}

func tagOf(msg string) string {
	if !strings.HasPrefix(msg, "[") {
		return ""
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 {
		return ""
	}
	return msg[1:end]
}
