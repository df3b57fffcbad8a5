package tui

import tea "github.com/charmbracelet/bubbletea"

// Run starts the Bubble Tea program and blocks until the operator
// quits.
func Run(m Model) error {
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}
