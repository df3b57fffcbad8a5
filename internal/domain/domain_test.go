package domain

import (
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id := NewID(CommandIDPrefix)
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		t.Fatalf("NewID = %q, want prefix_ULID", id)
	}
	if parts[0] != CommandIDPrefix {
		t.Errorf("prefix = %q, want %q", parts[0], CommandIDPrefix)
	}
	if len(parts[1]) != 26 {
		t.Errorf("ULID part %q has length %d, want 26", parts[1], len(parts[1]))
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID(TempIDPrefix)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIsTempID(t *testing.T) {
	if !IsTempID(NewID(TempIDPrefix)) {
		t.Error("temp id not recognized")
	}
	if IsTempID(NewID(MessageIDPrefix)) {
		t.Error("msg id misclassified as temp")
	}
	if IsTempID("tmpfoo") {
		t.Error("missing underscore separator should not match")
	}
}

func TestCommandResultIsZero(t *testing.T) {
	var r CommandResult
	if !r.IsZero() {
		t.Error("zero result should be zero")
	}
	r.Err = &ErrorResult{Error: "boom", ExitCode: -1}
	if r.IsZero() {
		t.Error("result with error variant should not be zero")
	}
}

func TestFeedEntryPending(t *testing.T) {
	e := FeedEntry{ID: NewID(TempIDPrefix), Kind: EntryCommand, Command: &Command{Name: "shell"}}
	if !e.Pending() {
		t.Error("command without result should be pending")
	}
	e.Result = &CommandResult{Shell: &ShellResult{ExitCode: 0}}
	if e.Pending() {
		t.Error("resolved command should not be pending")
	}
	chat := FeedEntry{ID: NewID(MessageIDPrefix), Kind: EntryChat, Text: "hi"}
	if chat.Pending() {
		t.Error("chat entries are never pending")
	}
}
