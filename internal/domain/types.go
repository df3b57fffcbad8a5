package domain

import "time"

// EntryKind discriminates the feed entry variants.
type EntryKind string

const (
	EntryChat    EntryKind = "chat"
	EntryEvent   EntryKind = "event"
	EntryCommand EntryKind = "command"
)

// Command is a parsed slash command: the name after the sigil, the
// argument string after the first whitespace, and the raw buffer text.
type Command struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
	Raw  string `json:"raw"`
}

// ShellResult is the outcome of a /shell execution.
type ShellResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	Cwd        string `json:"cwd"`
	DurationMs int64  `json:"duration_ms"`
}

// StatusResult summarizes the team's task board for /status.
type StatusResult struct {
	DoneToday    int                 `json:"done_today"`
	DoneThisWeek int                 `json:"done_this_week"`
	Pending      int                 `json:"pending"`
	Buckets      map[string][]string `json:"buckets"`
}

// DiffResult carries per-repo unified diffs for a task's branch.
type DiffResult struct {
	TaskID      string            `json:"task_id"`
	Branch      string            `json:"branch"`
	PerRepoDiff map[string]string `json:"per_repo_diff"`
}

// TaskCost is one row of a cost report.
type TaskCost struct {
	TaskID  string  `json:"task_id"`
	Title   string  `json:"title"`
	CostUSD float64 `json:"cost_usd"`
}

// CostResult is the spend summary for /cost.
type CostResult struct {
	Today    float64    `json:"today"`
	ThisWeek float64    `json:"this_week"`
	TopTasks []TaskCost `json:"top_tasks"`
}

// ErrorResult is the single failure shape for all command errors:
// validation misses, non-zero backend exits, and transport failures.
type ErrorResult struct {
	Error    string `json:"error"`
	ExitCode int    `json:"exit_code"`
}

// CommandResult is the tagged union of command outcomes. Exactly one
// variant is set once a command resolves; a zero CommandResult means
// the command is still pending.
type CommandResult struct {
	Shell  *ShellResult  `json:"shell,omitempty"`
	Status *StatusResult `json:"status,omitempty"`
	Diff   *DiffResult   `json:"diff,omitempty"`
	Cost   *CostResult   `json:"cost,omitempty"`
	Err    *ErrorResult  `json:"error,omitempty"`
}

// IsZero reports whether no variant has been set (command still pending).
func (r CommandResult) IsZero() bool {
	return r.Shell == nil && r.Status == nil && r.Diff == nil && r.Cost == nil && r.Err == nil
}

// FeedEntry is one row of the merged message feed.
type FeedEntry struct {
	ID        string    `json:"id"`
	Kind      EntryKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Text      string    `json:"text,omitempty"`

	// Command entries only.
	Command *Command       `json:"command,omitempty"`
	Result  *CommandResult `json:"result,omitempty"`
}

// Pending reports whether the entry is a command placeholder whose
// result has not arrived yet.
func (e FeedEntry) Pending() bool {
	return e.Kind == EntryCommand && (e.Result == nil || e.Result.IsZero())
}

// Task is an agent work item as the task board exposes it. /status and
// /cost are derived from task listings rather than dedicated state.
type Task struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Branch    string    `json:"branch,omitempty"`
	CostUSD   float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task status values used by the board.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskDone       = "done"
)
