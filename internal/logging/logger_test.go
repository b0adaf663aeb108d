package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetReturnsSameLoggerPerCategory(t *testing.T) {
	a := Get(CategoryGuard)
	b := Get(CategoryGuard)
	if a != b {
		t.Error("Expected the same logger instance for repeated Get calls")
	}

	c := Get(CategorySandbox)
	if a == c {
		t.Error("Expected distinct loggers for distinct categories")
	}
}

func TestInitializeCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Agent("session %s started", "test-session")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "mathmotion.log"))
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "test-session") {
		t.Errorf("log file missing entry, got: %s", data)
	}
}

func TestTimerStopDoesNotPanic(t *testing.T) {
	timer := StartTimer(CategoryRetrieval, "Retrieve")
	timer.Stop()
}
