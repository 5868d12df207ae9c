package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bcxlabs/buybackd/internal/config"
)

func TestSetup(t *testing.T) {
	dir := t.TempDir()

	closer, err := Setup("info", dir)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer closer.Close()

	filename := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	info, err := os.Stat(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if info.Size() == 0 {
		t.Error("log file is empty, expected the init line")
	}
}

func TestSetup_BadLevel(t *testing.T) {
	if _, err := Setup("loud", t.TempDir()); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestParseLevel(t *testing.T) {
	valid := []string{"debug", "info", "warn", "warning", "error", "INFO", "Error"}
	for _, s := range valid {
		if _, err := parseLevel(s); err != nil {
			t.Errorf("parseLevel(%q) error = %v", s, err)
		}
	}
	if _, err := parseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "buybackd-2020-01-01.log")
	recent := filepath.Join(dir, fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02")))
	unrelated := filepath.Join(dir, "notes.txt")

	for _, path := range []string{old, recent, unrelated} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().AddDate(0, 0, -(config.LogMaxAgeDays + 1))
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	if removed := CleanOldLogs(dir, config.LogMaxAgeDays); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale log file survived cleanup")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("current log file was removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated file was removed")
	}
}
