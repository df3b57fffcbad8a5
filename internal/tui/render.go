package tui

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/crewdlabs/crewd/internal/domain"
)

// WrapWords splits s into lines that fit within width, breaking at word
// boundaries. Words longer than width are hard-broken.
func WrapWords(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return []string{""}
	}
	lines := make([]string, 0, 8)
	cur := ""
	for _, word := range parts {
		next := word
		if cur != "" {
			next = cur + " " + word
		}
		if len(next) <= width {
			cur = next
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		for len(word) > width {
			lines = append(lines, word[:width])
			word = word[width:]
		}
		cur = word
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// TruncateToWidth trims s to a display width, rune-safe.
func TruncateToWidth(s string, maxWidth int) string {
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for i := len(runes); i > 0; i-- {
		candidate := string(runes[:i])
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}

// RenderEntry converts one feed entry into styled terminal lines.
// spin is the current spinner frame, shown on pending placeholders.
func RenderEntry(e domain.FeedEntry, spin string, width int) []string {
	if width < 20 {
		width = 20
	}
	switch e.Kind {
	case domain.EntryChat:
		return renderChat(e, width)
	case domain.EntryEvent:
		return renderEvent(e, width)
	case domain.EntryCommand:
		return renderCommand(e, spin, width)
	}
	return nil
}

func renderChat(e domain.FeedEntry, width int) []string {
	icon := AgentStyle.Render("⏺")
	nameStyle := AgentStyle
	if e.Sender == "operator" || e.Sender == "" {
		icon = OperatorStyle.Render("❯")
		nameStyle = OperatorStyle
	}
	head := icon + " " + nameStyle.Render(e.Sender)
	if e.Recipient != "" {
		head += FooterMeta.Render(" → @" + e.Recipient)
	}
	head += " " + TimestampStyle.Render(e.Timestamp.Local().Format("15:04"))

	lines := []string{head}
	for _, l := range WrapWords(e.Text, width-2) {
		lines = append(lines, "  "+l)
	}
	return lines
}

func renderEvent(e domain.FeedEntry, width int) []string {
	var lines []string
	for i, l := range WrapWords(e.Text, width-4) {
		if i == 0 {
			lines = append(lines, EventStyle.Render("  · "+l))
		} else {
			lines = append(lines, EventStyle.Render("    "+l))
		}
	}
	return lines
}

func renderCommand(e domain.FeedEntry, spin string, width int) []string {
	raw := ""
	if e.Command != nil {
		raw = e.Command.Raw
	}
	lines := []string{CommandStyle.Render("❯ " + raw)}
	if e.Pending() {
		lines = append(lines, PendingStyle.Render("  "+spin+" running..."))
		return lines
	}
	for _, l := range renderResult(*e.Result, width) {
		lines = append(lines, "  "+l)
	}
	return lines
}

func renderResult(r domain.CommandResult, width int) []string {
	switch {
	case r.Err != nil:
		return []string{ErrorLineStyle.Render(fmt.Sprintf("error: %s (exit %d)", r.Err.Error, r.Err.ExitCode))}
	case r.Shell != nil:
		return renderShell(*r.Shell)
	case r.Status != nil:
		return renderStatus(*r.Status)
	case r.Diff != nil:
		return renderDiff(*r.Diff, width)
	case r.Cost != nil:
		return renderCost(*r.Cost)
	}
	return nil
}

func renderShell(r domain.ShellResult) []string {
	var lines []string
	for _, l := range splitOutput(r.Stdout) {
		lines = append(lines, ResultStyle.Render(l))
	}
	for _, l := range splitOutput(r.Stderr) {
		lines = append(lines, StderrStyle.Render(l))
	}
	meta := fmt.Sprintf("exit %d · %dms", r.ExitCode, r.DurationMs)
	if r.Cwd != "" {
		meta += " · " + r.Cwd
	}
	lines = append(lines, FooterMeta.Render(meta))
	return lines
}

func renderStatus(r domain.StatusResult) []string {
	lines := []string{
		HeadingStyle.Render("task board"),
		fmt.Sprintf("done today: %d · done this week: %d · pending: %d", r.DoneToday, r.DoneThisWeek, r.Pending),
	}
	buckets := make([]string, 0, len(r.Buckets))
	for status := range r.Buckets {
		buckets = append(buckets, status)
	}
	sort.Strings(buckets)
	for _, status := range buckets {
		ids := r.Buckets[status]
		lines = append(lines, FooterMeta.Render(fmt.Sprintf("%s: %s", status, strings.Join(ids, ", "))))
	}
	return lines
}

func renderDiff(r domain.DiffResult, width int) []string {
	lines := []string{HeadingStyle.Render(fmt.Sprintf("task %s · branch %s", r.TaskID, r.Branch))}
	repos := make([]string, 0, len(r.PerRepoDiff))
	for repo := range r.PerRepoDiff {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	for _, repo := range repos {
		lines = append(lines, HeadingStyle.Render(repo))
		lines = append(lines, highlightDiff(r.PerRepoDiff[repo], width)...)
	}
	if len(repos) == 0 {
		lines = append(lines, FooterMeta.Render("no changes"))
	}
	return lines
}

func renderCost(r domain.CostResult) []string {
	lines := []string{
		HeadingStyle.Render("spend"),
		fmt.Sprintf("today: $%.2f · this week: $%.2f", r.Today, r.ThisWeek),
	}
	for _, t := range r.TopTasks {
		lines = append(lines, FooterMeta.Render(fmt.Sprintf("#%s %s · $%.2f", t.TaskID, t.Title, t.CostUSD)))
	}
	return lines
}

// highlightDiff syntax-highlights a unified diff with Chroma and adds
// a subtle line-number gutter.
func highlightDiff(text string, width int) []string {
	if width < 20 {
		width = 20
	}
	var highlighted bytes.Buffer
	if err := quick.Highlight(&highlighted, text, "diff", "terminal256", "dracula"); err != nil {
		highlighted.Reset()
		highlighted.WriteString(text)
	}
	raw := strings.Split(strings.TrimSuffix(highlighted.String(), "\n"), "\n")
	out := make([]string, 0, len(raw))
	for i, line := range raw {
		lineNo := CodeGutterStyle.Render(fmt.Sprintf("%3d", i+1))
		gutter := CodeGutterStyle.Render(" │ ")
		out = append(out, lineNo+gutter+line)
	}
	return out
}

func splitOutput(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// TimeAgo formats a timestamp as a compact relative age.
func TimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
