package tui

import "github.com/charmbracelet/lipgloss"

var (
	WelcomeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	OperatorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	AgentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	EventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	PromptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	InputStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	PendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	TimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	CommandStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("147")).Bold(true)
	ResultStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	StderrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	ErrorLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	NoticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	HeadingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true)
	CodeGutterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	FooterHead = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	FooterMeta = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	CompletionStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	CompletionSelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("62"))
	CompletionDescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)
