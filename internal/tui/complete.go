package tui

import (
	"fmt"
	"strings"

	"github.com/crewdlabs/crewd/internal/command"
)

// Completer owns the slash-command dropdown: the filtered candidate
// list and a wraparound selection cursor. Visibility is a pure
// function of the match list; there is no separate open/closed flag.
type Completer struct {
	query    string
	matches  []command.Def
	selected int
}

// SetQuery refilters the candidates for a new prefix. The selection
// resets to the top whenever the query changes.
func (c *Completer) SetQuery(q string) {
	if q != c.query {
		c.selected = 0
		c.query = q
	}
	c.matches = command.Filter(q)
	if c.selected >= len(c.matches) {
		c.selected = 0
	}
}

// Clear empties the match list, hiding the dropdown.
func (c *Completer) Clear() {
	c.query = ""
	c.matches = nil
	c.selected = 0
}

// Active reports whether the dropdown should be shown.
func (c *Completer) Active() bool { return len(c.matches) > 0 }

// Matches returns the current candidates in registration order.
func (c *Completer) Matches() []command.Def { return c.matches }

// SelectedIndex returns the selection cursor position.
func (c *Completer) SelectedIndex() int { return c.selected }

// Move shifts the selection by delta with wraparound. No-op while the
// dropdown is hidden.
func (c *Completer) Move(delta int) {
	n := len(c.matches)
	if n == 0 {
		return
	}
	c.selected = (c.selected + delta + n) % n
}

// Select returns the highlighted candidate. The caller writes
// "/<name> " back into the input buffer.
func (c *Completer) Select() (command.Def, bool) {
	return c.SelectAt(c.selected)
}

// SelectAt returns the candidate at index, for mouse selection.
func (c *Completer) SelectAt(index int) (command.Def, bool) {
	if index < 0 || index >= len(c.matches) {
		return command.Def{}, false
	}
	return c.matches[index], true
}

// RenderCompletionMenu renders the dropdown as a vertical menu with
// the selected row highlighted.
func RenderCompletionMenu(c *Completer, width int) string {
	const maxVisible = 8
	matches := c.Matches()
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	visible := min(len(matches), maxVisible)
	for i := 0; i < visible; i++ {
		label := command.Sigil + matches[i].Name
		desc := TruncateToWidth(matches[i].Description, max(20, width)-len(label)-4)
		if i == c.SelectedIndex() {
			b.WriteString(CompletionSelStyle.Render(" " + label + " "))
		} else {
			b.WriteString(CompletionStyle.Render(" " + label + " "))
		}
		b.WriteString(" " + CompletionDescStyle.Render(desc))
		b.WriteString("\n")
	}
	if len(matches) > maxVisible {
		b.WriteString(CompletionStyle.Render(fmt.Sprintf(" ... and %d more", len(matches)-maxVisible)))
		b.WriteString("\n")
	}
	return b.String()
}
