// Package testing holds fixtures shared by package tests.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/storage"
)

// SetupTestConfig returns a valid configuration whose output, report, log
// and history paths live under a per-test temp dir.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "debug"
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Log.File = "test.log"
	cfg.Capture.Path = filepath.Join(dir, "frames")
	cfg.Output.SaveDir = filepath.Join(dir, "captures")
	cfg.Output.ReportDir = filepath.Join(dir, "reports")
	cfg.Storage.Path = storage.MemoryDSN

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

// logWriter routes console output through t.Log so it only shows on failure.
type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.NewWriter(logWriter{t: t}, "debug")
}

// SetupTestDB opens a migrated in-memory history database closed at cleanup.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.MemoryDSN)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}
