package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledLoggingIsNoOp(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, false, "info"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Router("this should go nowhere")

	if _, err := os.Stat(filepath.Join(dir, ".forge", "logs")); !os.IsNotExist(err) {
		t.Errorf("expected no logs directory in disabled mode, stat err = %v", err)
	}
}

func TestDebugLoggingWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true, "debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Sandbox("artifact %s finished", "abc-123")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".forge", "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "sandbox") {
			found = true
			data, err := os.ReadFile(filepath.Join(dir, ".forge", "logs", e.Name()))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !strings.Contains(string(data), "abc-123") {
				t.Errorf("log file missing message, got: %s", data)
			}
		}
	}
	if !found {
		t.Error("no sandbox log file created")
	}
}

func TestLevelFilter(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true, "error"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryStore)
	l.Info("filtered out")
	l.Error("kept")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(dir, ".forge", "logs"))
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(dir, ".forge", "logs", e.Name()))
		if strings.Contains(string(data), "filtered out") {
			t.Error("info message written despite error level")
		}
		if strings.Contains(e.Name(), "store") && !strings.Contains(string(data), "kept") {
			t.Error("error message missing")
		}
	}
}
