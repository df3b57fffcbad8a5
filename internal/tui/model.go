package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/crewdlabs/crewd/internal/command"
	"github.com/crewdlabs/crewd/internal/config"
	"github.com/crewdlabs/crewd/internal/dispatch"
	"github.com/crewdlabs/crewd/internal/domain"
	"github.com/crewdlabs/crewd/internal/feed"
	"github.com/crewdlabs/crewd/internal/history"
)

const (
	pollInterval = 2 * time.Second
	fetchLimit   = 50
)

// Client is the daemon surface the model talks to: command dispatch
// plus channel and feed reads.
type Client interface {
	dispatch.Backend
	ListChannels() ([]string, error)
	FetchMessages(channel string, since time.Time, limit int) ([]domain.FeedEntry, error)
	FetchMessagesBefore(channel, beforeID string, limit int) ([]domain.FeedEntry, error)
}

type tickMsg time.Time

type channelsMsg struct {
	names []string
	err   error
}

// pollMsg carries one poll batch, tagged with the channel it was
// fetched for so late arrivals land in the right feed.
type pollMsg struct {
	channel string
	entries []domain.FeedEntry
	err     error
}

type olderMsg struct {
	channel string
	entries []domain.FeedEntry
	err     error
}

// sentMsg reports a plain-message round trip: the optimistic entry's
// temp id and the stored entry that replaces it.
type sentMsg struct {
	channel string
	tempID  string
	entry   domain.FeedEntry
	err     error
}

// resolvedMsg reports a finished command: the resolution to patch into
// the placeholder plus the persisted copy, when one was saved.
type resolvedMsg struct {
	channel    string
	res        dispatch.Resolution
	saved      domain.FeedEntry
	persistErr error
}

// Model is the Bubble Tea model for the operator chat surface.
type Model struct {
	width   int
	height  int
	version string

	client Client
	disp   *dispatch.Dispatcher
	logger *config.Logger

	channel  string
	channels []string
	feeds    map[string]*feed.Feed
	hists    map[string]*history.Store
	cwds     map[string]string
	drafts   map[string]string

	input       string
	inputCursor int
	completer   Completer
	spinner     spinner.Model

	// scroll counts lines up from the bottom of the feed.
	scroll       int
	loadingOlder bool
	notice       string
}

// InitialModel builds the model from persisted per-channel state.
func InitialModel(client Client, version, channel string, states map[string]config.ChannelState, logger *config.Logger) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		client:   client,
		disp:     dispatch.New(client, "operator"),
		logger:   logger,
		version:  version,
		channel:  channel,
		channels: []string{channel},
		feeds:    make(map[string]*feed.Feed),
		hists:    make(map[string]*history.Store),
		cwds:     make(map[string]string),
		drafts:   make(map[string]string),
		spinner:  sp,
	}
	for name, st := range states {
		m.hists[name] = history.Restore(st.History, history.DefaultCapacity)
		m.cwds[name] = st.Cwd
	}
	return m
}

// Init starts the spinner, the poll loop, and the channel listing.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchChannels(), m.poll(m.channel), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchChannels() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		names, err := c.ListChannels()
		return channelsMsg{names: names, err: err}
	}
}

func (m Model) poll(channel string) tea.Cmd {
	c := m.client
	since := m.feedFor(channel).LastSeen()
	return func() tea.Msg {
		entries, err := c.FetchMessages(channel, since, fetchLimit)
		return pollMsg{channel: channel, entries: entries, err: err}
	}
}

func (m Model) loadOlder(channel string) tea.Cmd {
	c := m.client
	beforeID := m.feedFor(channel).EarliestID()
	if beforeID == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := c.FetchMessagesBefore(channel, beforeID, fetchLimit)
		return olderMsg{channel: channel, entries: entries, err: err}
	}
}

func (m Model) feedFor(channel string) *feed.Feed {
	f, ok := m.feeds[channel]
	if !ok {
		f = feed.New()
		m.feeds[channel] = f
	}
	return f
}

func (m Model) histFor(channel string) *history.Store {
	h, ok := m.hists[channel]
	if !ok {
		h = history.New(history.DefaultCapacity)
		m.hists[channel] = h
	}
	return h
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(m.poll(m.channel), m.tick())

	case channelsMsg:
		if msg.err != nil {
			m.logger.Warnf("list channels: %v", msg.err)
			return m, nil
		}
		for _, name := range msg.names {
			if !containsString(m.channels, name) {
				m.channels = append(m.channels, name)
			}
		}
		return m, nil

	case pollMsg:
		if msg.err != nil {
			m.logger.Warnf("poll %s: %v", msg.channel, msg.err)
			return m, nil
		}
		m.feedFor(msg.channel).ApplyPoll(msg.entries)
		return m, nil

	case olderMsg:
		m.loadingOlder = false
		// Discard batches for a channel the operator has left.
		if msg.channel != m.channel {
			return m, nil
		}
		if msg.err != nil {
			m.logger.Warnf("load older %s: %v", msg.channel, msg.err)
			return m, nil
		}
		// Scroll is measured from the bottom, so prepending does not
		// shift what is on screen.
		m.feedFor(msg.channel).PrependOlder(msg.entries)
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.notice = "send failed: " + msg.err.Error()
			m.logger.Warnf("send %s: %v", msg.channel, msg.err)
			return m, nil
		}
		m.feedFor(msg.channel).Rebind(msg.tempID, msg.entry.ID)
		return m, nil

	case resolvedMsg:
		f := m.feedFor(msg.channel)
		f.Resolve(msg.res.TempID, msg.res.Result)
		if msg.res.HistoryArg != "" {
			m.histFor(msg.channel).Append(msg.res.HistoryArg)
			m.saveStates()
		}
		if msg.saved.ID != "" {
			f.Rebind(msg.res.TempID, msg.saved.ID)
		}
		if msg.persistErr != nil {
			m.notice = "result not saved: " + msg.persistErr.Error()
			m.logger.Warnf("persist %s: %v", msg.channel, msg.persistErr)
		}
		return m, nil
	}

	return m, nil
}

// ---------------------------------------------------------------------------
// Key handler
// ---------------------------------------------------------------------------

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.saveStates()
		return m, tea.Quit

	case tea.KeyEsc:
		// Exit command mode: clear the buffer and drop any traversal.
		m.setInput("")
		m.completer.Clear()
		m.histFor(m.channel).Reset()
		m.notice = ""
		return m, nil

	case tea.KeyTab:
		if m.completer.Active() {
			m.confirmCompletion()
		}
		return m, nil

	case tea.KeyEnter:
		// Autocomplete selection preempts submit.
		if m.completer.Active() {
			m.confirmCompletion()
			return m, nil
		}
		return m.submit()

	case tea.KeyUp:
		if m.completer.Active() {
			m.completer.Move(-1)
			return m, nil
		}
		m.browseHistoryBack()
		return m, nil

	case tea.KeyDown:
		if m.completer.Active() {
			m.completer.Move(1)
			return m, nil
		}
		m.browseHistoryForward()
		return m, nil

	case tea.KeyPgUp:
		if m.atFeedTop() {
			if !m.loadingOlder {
				m.loadingOlder = true
				return m, m.loadOlder(m.channel)
			}
			return m, nil
		}
		m.scroll += m.feedHeight() / 2
		m.clampScroll()
		return m, nil

	case tea.KeyPgDown:
		m.scroll -= m.feedHeight() / 2
		m.clampScroll()
		return m, nil

	case tea.KeyCtrlN:
		m.nextChannel()
		return m, m.poll(m.channel)

	case tea.KeyLeft:
		m.moveInputCursor(-1)
		return m, nil

	case tea.KeyRight:
		m.moveInputCursor(1)
		return m, nil

	case tea.KeyHome, tea.KeyCtrlA:
		m.inputCursor = 0
		return m, nil

	case tea.KeyEnd, tea.KeyCtrlE:
		m.inputCursor = len([]rune(m.input))
		return m, nil

	case tea.KeyBackspace:
		if m.deleteInputBeforeCursor() {
			m.histFor(m.channel).Reset()
			m.syncCompleter()
		}
		return m, nil

	case tea.KeyDelete:
		if m.deleteInputAtCursor() {
			m.histFor(m.channel).Reset()
			m.syncCompleter()
		}
		return m, nil

	case tea.KeySpace:
		m.insertInputAtCursor(" ")
		m.histFor(m.channel).Reset()
		m.syncCompleter()
		return m, nil

	default:
		if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
			m.insertInputAtCursor(string(msg.Runes))
			m.histFor(m.channel).Reset()
			m.syncCompleter()
		}
		return m, nil
	}
}

// confirmCompletion writes the selected command back into the buffer
// as "/<name> ", which lands classification in argument-entry mode.
func (m *Model) confirmCompletion() {
	def, ok := m.completer.Select()
	if !ok {
		return
	}
	m.setInput(command.Sigil + def.Name + " ")
	m.completer.Clear()
}

// syncCompleter refilters the dropdown after any buffer edit. The
// dropdown exists only while a command name is being typed.
func (m *Model) syncCompleter() {
	cls := command.Classify(m.input)
	if cls.Mode == command.ModeTypingName {
		m.completer.SetQuery(cls.Query)
		return
	}
	m.completer.Clear()
}

// ---------------------------------------------------------------------------
// Submission
// ---------------------------------------------------------------------------

func (m Model) submit() (tea.Model, tea.Cmd) {
	sub, ok := m.disp.Submit(m.input)
	if !ok {
		m.setInput("")
		return m, nil
	}
	channel := m.channel
	m.feedFor(channel).AppendLocal(sub.Entry)
	m.setInput("")
	m.completer.Clear()
	m.histFor(channel).Reset()
	m.scroll = 0
	m.notice = ""

	if sub.CwdUpdate != "" {
		m.cwds[channel] = sub.CwdUpdate
		m.saveStates()
	}

	disp := m.disp
	if sub.IsCommand {
		cwd := m.cwds[channel]
		return m, func() tea.Msg {
			res := disp.Execute(channel, cwd, sub)
			saved, err := disp.Persist(channel, sub, res)
			return resolvedMsg{channel: channel, res: res, saved: saved, persistErr: err}
		}
	}
	tempID := sub.Entry.ID
	return m, func() tea.Msg {
		e, err := disp.Send(channel, sub)
		return sentMsg{channel: channel, tempID: tempID, entry: e, err: err}
	}
}

// ---------------------------------------------------------------------------
// History navigation
// ---------------------------------------------------------------------------

// browseHistoryBack walks toward older shell arguments. Only active in
// argument-entry mode for a shell-like command; the name portion of
// the buffer stays put and the argument portion is swapped.
func (m *Model) browseHistoryBack() {
	cls := command.Classify(m.input)
	if cls.Mode != command.ModeArgEntry || cls.Def.Grammar != command.ArgShellLike {
		return
	}
	if arg, ok := m.histFor(m.channel).Older(cls.Cmd.Args); ok {
		m.setInput(command.Sigil + cls.Cmd.Name + " " + arg)
	}
}

func (m *Model) browseHistoryForward() {
	cls := command.Classify(m.input)
	if cls.Mode != command.ModeArgEntry || cls.Def.Grammar != command.ArgShellLike {
		return
	}
	if arg, ok := m.histFor(m.channel).Newer(); ok {
		m.setInput(command.Sigil + cls.Cmd.Name + " " + arg)
	}
}

// ---------------------------------------------------------------------------
// Channel switching
// ---------------------------------------------------------------------------

// nextChannel cycles to the next channel. The leaving channel's draft
// is snapshotted out and its traversal state dropped; the target's
// snapshot is restored wholesale.
func (m *Model) nextChannel() {
	if len(m.channels) < 2 {
		return
	}
	idx := 0
	for i, name := range m.channels {
		if name == m.channel {
			idx = i
			break
		}
	}
	m.drafts[m.channel] = m.input
	m.histFor(m.channel).Reset()
	m.completer.Clear()

	m.channel = m.channels[(idx+1)%len(m.channels)]
	m.setInput(m.drafts[m.channel])
	m.syncCompleter()
	m.scroll = 0
	m.notice = ""
}

// saveStates persists cwd and history for every channel seen this
// session. Drafts are transient and not written.
func (m Model) saveStates() {
	states := make(map[string]config.ChannelState)
	for name, h := range m.hists {
		states[name] = config.ChannelState{Cwd: m.cwds[name], History: h.Entries()}
	}
	for name, cwd := range m.cwds {
		if _, ok := states[name]; !ok {
			states[name] = config.ChannelState{Cwd: cwd}
		}
	}
	if err := config.SaveChannelStates(states); err != nil {
		m.logger.Warnf("save channel state: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Input buffer
// ---------------------------------------------------------------------------

func (m *Model) setInput(s string) {
	m.input = s
	m.inputCursor = len([]rune(s))
}

func (m *Model) moveInputCursor(delta int) {
	limit := len([]rune(m.input))
	m.inputCursor += delta
	if m.inputCursor < 0 {
		m.inputCursor = 0
	}
	if m.inputCursor > limit {
		m.inputCursor = limit
	}
}

func (m *Model) insertInputAtCursor(s string) {
	if s == "" {
		return
	}
	r := []rune(m.input)
	if m.inputCursor < 0 {
		m.inputCursor = 0
	}
	if m.inputCursor > len(r) {
		m.inputCursor = len(r)
	}
	ins := []rune(s)
	out := make([]rune, 0, len(r)+len(ins))
	out = append(out, r[:m.inputCursor]...)
	out = append(out, ins...)
	out = append(out, r[m.inputCursor:]...)
	m.input = string(out)
	m.inputCursor += len(ins)
}

func (m *Model) deleteInputBeforeCursor() bool {
	r := []rune(m.input)
	if len(r) == 0 || m.inputCursor <= 0 {
		return false
	}
	if m.inputCursor > len(r) {
		m.inputCursor = len(r)
	}
	out := make([]rune, 0, len(r)-1)
	out = append(out, r[:m.inputCursor-1]...)
	out = append(out, r[m.inputCursor:]...)
	m.input = string(out)
	m.inputCursor--
	return true
}

func (m *Model) deleteInputAtCursor() bool {
	r := []rune(m.input)
	if len(r) == 0 || m.inputCursor < 0 || m.inputCursor >= len(r) {
		return false
	}
	out := make([]rune, 0, len(r)-1)
	out = append(out, r[:m.inputCursor]...)
	out = append(out, r[m.inputCursor+1:]...)
	m.input = string(out)
	return true
}

func withInlineCursor(input string, cursor int) string {
	r := []rune(input)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(r) {
		cursor = len(r)
	}
	with := make([]rune, 0, len(r)+1)
	with = append(with, r[:cursor]...)
	with = append(with, '█')
	with = append(with, r[cursor:]...)
	return string(with)
}

func hardWrapLine(line string, width int) []string {
	if width < 1 {
		width = 1
	}
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}
	var lines []string
	for len(runes) > width {
		lines = append(lines, string(runes[:width]))
		runes = runes[width:]
	}
	lines = append(lines, string(runes))
	return lines
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m Model) View() string {
	var b strings.Builder

	avail := m.width - 2
	if avail < 10 {
		avail = 10
	}

	b.WriteString(m.headerView())
	b.WriteString("\n")

	lines := m.feedLines(avail)
	visible := m.feedHeight()
	end := len(lines) - m.scroll
	if end > len(lines) {
		end = len(lines)
	}
	start := end - visible
	if start < 0 {
		start = 0
	}
	for _, l := range lines[start:end] {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.inputView(avail))

	if m.completer.Active() {
		b.WriteString("\n")
		b.WriteString(RenderCompletionMenu(&m.completer, max(40, m.width)))
	}

	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	var tabs []string
	for _, name := range m.channels {
		if name == m.channel {
			tabs = append(tabs, HeadingStyle.Render("#"+name))
		} else {
			tabs = append(tabs, FooterMeta.Render("#"+name))
		}
	}
	return strings.Join(tabs, "  ")
}

func (m Model) feedLines(width int) []string {
	entries := m.feedFor(m.channel).Entries()
	if len(entries) == 0 {
		return []string{WelcomeStyle.Render("Welcome to crewd. Talk to your crew, or type / for commands.")}
	}
	var lines []string
	for _, e := range entries {
		lines = append(lines, RenderEntry(e, m.spinner.View(), width)...)
		lines = append(lines, "")
	}
	return lines
}

func (m Model) inputView(width int) string {
	var b strings.Builder
	inputLines := strings.Split(withInlineCursor(m.input, m.inputCursor), "\n")
	first := true
	for _, line := range inputLines {
		for _, wl := range hardWrapLine(line, width) {
			if first {
				b.WriteString(PromptStyle.Render("❯ ") + InputStyle.Render(wl))
				first = false
			} else {
				b.WriteString("\n" + PromptStyle.Render("  ") + InputStyle.Render(wl))
			}
		}
	}
	return b.String()
}

func (m Model) footerView() string {
	parts := []string{fmt.Sprintf("crewd %s", m.version), "#" + m.channel}
	if cwd := m.cwds[m.channel]; cwd != "" {
		parts = append(parts, "cwd: "+cwd)
	}
	if n := m.feedFor(m.channel).PendingCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d running", n))
	}
	out := FooterHead.Render(strings.Join(parts, " · "))
	if m.notice != "" {
		out += "\n" + NoticeStyle.Render(m.notice)
	}
	return out
}

func (m Model) feedHeight() int {
	h := m.height - 8
	if h < 5 {
		h = 5
	}
	return h
}

func (m Model) atFeedTop() bool {
	avail := m.width - 2
	if avail < 10 {
		avail = 10
	}
	return m.scroll >= len(m.feedLines(avail))-m.feedHeight()
}

func (m *Model) clampScroll() {
	avail := m.width - 2
	if avail < 10 {
		avail = 10
	}
	limit := len(m.feedLines(avail)) - m.feedHeight()
	if limit < 0 {
		limit = 0
	}
	if m.scroll > limit {
		m.scroll = limit
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
