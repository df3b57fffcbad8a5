package backend

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/crewdlabs/crewd/internal/store"
)

// UnifiedDiff renders a line-based unified diff of base against head
// for a single file.
func UnifiedDiff(path, base, head string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(base, head)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	sb.WriteString("--- a/" + path + "\n")
	sb.WriteString("+++ b/" + path + "\n")
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			sb.WriteString(prefix + line + "\n")
		}
	}
	return sb.String()
}

// PerRepoDiffs groups a task's file snapshots by repo and renders one
// concatenated unified diff per repo. Unchanged files are skipped.
func PerRepoDiffs(snaps []store.Snapshot) map[string]string {
	out := make(map[string]string)
	for _, sn := range snaps {
		if sn.BaseText == sn.HeadText {
			continue
		}
		out[sn.Repo] += UnifiedDiff(sn.Path, sn.BaseText, sn.HeadText)
	}
	return out
}
