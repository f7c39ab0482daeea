// Package report writes the artefacts produced for scan events: annotated
// snapshots, per-code quality reports and the tabular export.
package report

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is used in every generated file name.
const TimestampLayout = "20060102_150405"

// NoOrder is the snapshot directory used when no order id is configured.
const NoOrder = "NoOrder"

const maxNameLen = 64

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns a payload into something usable as a file name
// component. Empty results become "code".
func SanitizeName(s string) string {
	s = unsafeName.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	if s == "" {
		return "code"
	}
	return s
}

func stamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// writeAtomic writes through a temp file in the target directory so a reader
// never sees a partial file.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
