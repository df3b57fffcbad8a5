package dispatch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/crewdlabs/crewd/internal/backend"
	"github.com/crewdlabs/crewd/internal/command"
	"github.com/crewdlabs/crewd/internal/domain"
)

// Backend is the slice of the daemon client the dispatcher talks to.
type Backend interface {
	SendMessage(channel, recipient, text string) (domain.FeedEntry, error)
	Shell(channel, args, cwd string) (domain.ShellResult, error)
	Tasks(channel string) ([]domain.Task, error)
	Cost(channel string) (domain.CostResult, error)
	Diff(taskID string) (domain.DiffResult, error)
	SaveCommand(channel, raw string, result domain.CommandResult) (domain.FeedEntry, error)
}

// Dispatcher turns submitted buffer text into optimistic feed entries
// and resolves recognized commands against the backend.
type Dispatcher struct {
	backend Backend
	sender  string
}

func New(b Backend, sender string) *Dispatcher {
	return &Dispatcher{backend: b, sender: sender}
}

// Submission is what Submit placed in the feed plus the work left to
// do. The entry carries a temporary id until persistence confirms it.
type Submission struct {
	Entry     domain.FeedEntry
	IsCommand bool

	// CwdUpdate is the path from an embedded -d flag, applied to the
	// channel's cwd before execution. Empty when no flag was typed.
	CwdUpdate string

	cmd     domain.Command
	grammar command.ArgGrammar
}

// Raw returns the submitted buffer text for a command submission.
func (s Submission) Raw() string { return s.cmd.Raw }

// Submit classifies the buffer and builds the optimistic entry to
// append synchronously. Plain text becomes a chat entry; a recognized
// command becomes a pending placeholder. A bare "/name" with no
// trailing space counts as that command with empty args. Returns false
// for an all-whitespace buffer, which is not submittable.
func (d *Dispatcher) Submit(text string) (Submission, bool) {
	if strings.TrimSpace(text) == "" {
		return Submission{}, false
	}
	cls := command.Classify(text)
	cmd := cls.Cmd
	def := cls.Def
	if cls.Mode == command.ModeTypingName {
		if bare, ok := command.Lookup(cls.Query); ok {
			def = bare
			cmd = &domain.Command{Name: cls.Query, Raw: text}
		}
	}

	if cmd == nil {
		recipient, body := splitRecipient(strings.TrimSpace(text))
		return Submission{Entry: domain.FeedEntry{
			ID:        domain.NewID(domain.TempIDPrefix),
			Kind:      domain.EntryChat,
			Timestamp: time.Now().UTC(),
			Sender:    d.sender,
			Recipient: recipient,
			Text:      body,
		}}, true
	}

	sub := Submission{IsCommand: true, cmd: *cmd, grammar: def.Grammar}
	if def.Grammar == command.ArgShellLike {
		if path, ok := command.ExtractCwdFlag(cmd.Args); ok {
			sub.CwdUpdate = path
		}
	}
	sub.Entry = domain.FeedEntry{
		ID:        domain.NewID(domain.TempIDPrefix),
		Kind:      domain.EntryCommand,
		Timestamp: time.Now().UTC(),
		Sender:    d.sender,
		Command:   cmd,
	}
	return sub, true
}

// splitRecipient peels a leading "@name " mention off a chat message.
func splitRecipient(text string) (recipient, body string) {
	if !strings.HasPrefix(text, "@") {
		return "", text
	}
	ws := strings.IndexFunc(text, unicode.IsSpace)
	if ws <= 1 {
		return "", text
	}
	return text[1:ws], strings.TrimSpace(text[ws+1:])
}

// Resolution is the outcome of executing one command submission.
type Resolution struct {
	TempID string
	Result domain.CommandResult

	// HistoryArg is the argument string to record in shell history.
	// Set only for a shell-like command that exited zero.
	HistoryArg string

	// Persist reports whether the result should be saved to the
	// backend. Validation failures never reach the network, in either
	// direction.
	Persist bool
}

// Execute runs a command submission against the backend and returns
// the result to patch into the placeholder. cwd is the channel's
// working directory after any CwdUpdate was applied. Blocks until the
// backend responds; callers run it off the UI loop.
func (d *Dispatcher) Execute(channel, cwd string, sub Submission) Resolution {
	res := Resolution{TempID: sub.Entry.ID}
	switch sub.cmd.Name {
	case "shell":
		args := strings.TrimSpace(command.StripCwdFlag(sub.cmd.Args))
		if args == "" {
			res.Result.Err = &domain.ErrorResult{Error: "usage: /shell <command>", ExitCode: -1}
			return res
		}
		out, err := d.backend.Shell(channel, args, cwd)
		if err != nil {
			return transportError(res, err)
		}
		res.Result.Shell = &out
		res.Persist = true
		if out.ExitCode == 0 {
			res.HistoryArg = strings.TrimSpace(sub.cmd.Args)
		}
	case "status":
		tasks, err := d.backend.Tasks(channel)
		if err != nil {
			return transportError(res, err)
		}
		st := summarizeTasks(tasks, time.Now().UTC())
		res.Result.Status = &st
		res.Persist = true
	case "diff":
		id, ok := parseTaskID(sub.cmd.Args)
		if !ok {
			res.Result.Err = &domain.ErrorResult{
				Error:    fmt.Sprintf("invalid task id %q, expected a number", strings.TrimSpace(sub.cmd.Args)),
				ExitCode: -1,
			}
			return res
		}
		out, err := d.backend.Diff(id)
		if errors.Is(err, backend.ErrNotFound) {
			res.Result.Err = &domain.ErrorResult{Error: "task " + id + " not found", ExitCode: 1}
			res.Persist = true
			return res
		}
		if err != nil {
			return transportError(res, err)
		}
		res.Result.Diff = &out
		res.Persist = true
	case "cost":
		out, err := d.backend.Cost(channel)
		if err != nil {
			return transportError(res, err)
		}
		res.Result.Cost = &out
		res.Persist = true
	default:
		res.Result.Err = &domain.ErrorResult{Error: "unknown command: " + sub.cmd.Name, ExitCode: -1}
	}
	return res
}

func transportError(res Resolution, err error) Resolution {
	res.Result.Err = &domain.ErrorResult{Error: err.Error(), ExitCode: -1}
	return res
}

// Persist saves the finished raw/result pair and returns the stored
// entry carrying the server-assigned id. The caller rebinds the
// placeholder to that id. A persistence failure leaves the local
// result visible; it is a warning, not a rollback.
func (d *Dispatcher) Persist(channel string, sub Submission, res Resolution) (domain.FeedEntry, error) {
	if !res.Persist {
		return domain.FeedEntry{}, nil
	}
	e, err := d.backend.SaveCommand(channel, sub.cmd.Raw, res.Result)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("save command: %w", err)
	}
	return e, nil
}

// Send delivers a plain chat submission and returns the stored entry
// for the temp-id swap. On failure the optimistic entry stays in the
// feed; the error is surfaced as a non-blocking notice.
func (d *Dispatcher) Send(channel string, sub Submission) (domain.FeedEntry, error) {
	e, err := d.backend.SendMessage(channel, sub.Entry.Recipient, sub.Entry.Text)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("send message: %w", err)
	}
	return e, nil
}

// parseTaskID accepts a decimal task id with an optional single
// leading letter prefix, e.g. "42" or "t42".
func parseTaskID(args string) (string, bool) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", false
	}
	runes := []rune(s)
	if unicode.IsLetter(runes[0]) {
		s = string(runes[1:])
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", false
	}
	return s, true
}

// summarizeTasks derives the /status report from a task listing.
// Done counts use the task's last update time; pending counts every
// task not yet done.
func summarizeTasks(tasks []domain.Task, now time.Time) domain.StatusResult {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))

	st := domain.StatusResult{Buckets: make(map[string][]string)}
	for _, t := range tasks {
		st.Buckets[t.Status] = append(st.Buckets[t.Status], t.ID)
		if t.Status == domain.TaskDone {
			if !t.UpdatedAt.Before(dayStart) {
				st.DoneToday++
			}
			if !t.UpdatedAt.Before(weekStart) {
				st.DoneThisWeek++
			}
			continue
		}
		st.Pending++
	}
	return st
}
