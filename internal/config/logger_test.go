package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	dataDirOverride = t.TempDir()
	defer func() { dataDirOverride = "" }()

	l := NewLogger()
	l.Printf("poll ok: %d entries", 3)
	l.Warnf("poll %s: %v", "team-alpha", "connection refused")
	l.Close()

	data, err := os.ReadFile(LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], " info poll ok: 3 entries") {
		t.Errorf("info line = %q", lines[0])
	}
	if !strings.Contains(lines[1], " warn poll team-alpha: connection refused") {
		t.Errorf("warn line = %q", lines[1])
	}
}

func TestLoggerWithoutFileIsSilent(t *testing.T) {
	// A logger that failed to open must not panic or block.
	l := &Logger{}
	l.Printf("goes nowhere")
	l.Warnf("also nowhere")
	l.Close()
}
