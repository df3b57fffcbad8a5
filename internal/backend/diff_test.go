package backend

import (
	"strings"
	"testing"

	"github.com/crewdlabs/crewd/internal/store"
)

func TestUnifiedDiff(t *testing.T) {
	base := "line one\nline two\nline three\n"
	head := "line one\nline 2\nline three\n"

	diff := UnifiedDiff("notes.txt", base, head)
	if !strings.HasPrefix(diff, "--- a/notes.txt\n+++ b/notes.txt\n") {
		t.Errorf("missing header:\n%s", diff)
	}
	if !strings.Contains(diff, "-line two\n") {
		t.Errorf("missing deletion:\n%s", diff)
	}
	if !strings.Contains(diff, "+line 2\n") {
		t.Errorf("missing insertion:\n%s", diff)
	}
	if !strings.Contains(diff, " line one\n") {
		t.Errorf("missing context line:\n%s", diff)
	}
}

func TestPerRepoDiffs(t *testing.T) {
	snaps := []store.Snapshot{
		{Repo: "backend", Path: "a.go", BaseText: "x\n", HeadText: "y\n"},
		{Repo: "backend", Path: "b.go", BaseText: "same\n", HeadText: "same\n"},
		{Repo: "frontend", Path: "app.ts", BaseText: "", HeadText: "new file\n"},
	}
	out := PerRepoDiffs(snaps)

	if len(out) != 2 {
		t.Fatalf("got %d repos, want 2", len(out))
	}
	if !strings.Contains(out["backend"], "a.go") {
		t.Errorf("backend diff missing a.go:\n%s", out["backend"])
	}
	if strings.Contains(out["backend"], "b.go") {
		t.Errorf("unchanged file should be skipped:\n%s", out["backend"])
	}
	if !strings.Contains(out["frontend"], "+new file") {
		t.Errorf("frontend diff = %q", out["frontend"])
	}
}
