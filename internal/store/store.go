package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crewdlabs/crewd/internal/config"
	"github.com/crewdlabs/crewd/internal/domain"

	_ "modernc.org/sqlite"
)

// timeLayout pads fractional seconds to nine digits so stored
// timestamps compare lexicographically in time order. RFC3339Nano
// trims trailing zeros, which would break the string comparison the
// since-cursor relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps a SQLite database for channel, feed, and task persistence.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database in the crewd data directory.
func OpenStore() (*Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	dsn := filepath.Join(dir, "crewd.db")

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB creates a Store from an existing *sql.DB and runs migrations.
// This is useful for testing with an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS channels (
			name TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL REFERENCES channels(name) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			command_raw TEXT NOT NULL DEFAULT '',
			result_json TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			sequence INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel TEXT NOT NULL REFERENCES channels(name) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			branch TEXT NOT NULL DEFAULT '',
			cost_usd TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			repo TEXT NOT NULL,
			path TEXT NOT NULL,
			base_text TEXT NOT NULL DEFAULT '',
			head_text TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (task_id, repo, path)
		);
	`); err != nil {
		return err
	}

	// Add missing columns to existing DBs before creating indexes.
	for _, q := range []string{
		`ALTER TABLE entries ADD COLUMN recipient TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE entries ADD COLUMN result_json TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE tasks ADD COLUMN branch TEXT NOT NULL DEFAULT ''`,
	} {
		// ALTER TABLE errors expected: column may already exist.
		if _, err := s.db.Exec(q); err != nil {
			// expected: column already exists
		}
	}

	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_channel_seq ON entries(channel, sequence);
		CREATE INDEX IF NOT EXISTS idx_entries_channel_time ON entries(channel, created_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_channel ON tasks(channel, status);
	`)
	return err
}

// EnsureChannel creates the channel row if it does not exist.
func (s *Store) EnsureChannel(name string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO channels (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("ensure channel: %w", err)
	}
	return nil
}

// ListChannels returns all channel names, oldest first.
func (s *Store) ListChannels() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM channels ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SaveMessage persists a chat or event entry and returns the stored
// entry with its server-assigned id and timestamp.
func (s *Store) SaveMessage(channel string, kind domain.EntryKind, sender, recipient, text string) (domain.FeedEntry, error) {
	if err := s.EnsureChannel(channel); err != nil {
		return domain.FeedEntry{}, err
	}
	prefix := domain.MessageIDPrefix
	if kind == domain.EntryEvent {
		prefix = domain.EventIDPrefix
	}
	e := domain.FeedEntry{
		ID:        domain.NewID(prefix),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
	}
	// The sequence is claimed inside the INSERT so two concurrent
	// saves cannot read the same MAX and collide.
	_, err := s.db.Exec(`
		INSERT INTO entries (id, channel, kind, sender, recipient, text, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM entries WHERE channel = ?))`,
		e.ID, channel, string(e.Kind), e.Sender, e.Recipient, e.Text,
		e.Timestamp.Format(timeLayout), channel)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("save message: %w", err)
	}
	return e, nil
}

// SaveCommand persists a finished command (raw text plus result) and
// returns the stored entry. The caller swaps its temporary id for the
// returned one. Saving the same raw/result pair again creates a new
// row; the client's id-based merge keeps the feed free of duplicates,
// which makes retry safe from the UI's perspective.
func (s *Store) SaveCommand(channel, sender, raw string, result domain.CommandResult) (domain.FeedEntry, error) {
	if err := s.EnsureChannel(channel); err != nil {
		return domain.FeedEntry{}, err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("marshal result: %w", err)
	}
	c := domain.Command{Raw: raw}
	if cls := parseRaw(raw); cls != nil {
		c = *cls
	}
	e := domain.FeedEntry{
		ID:        domain.NewID(domain.CommandIDPrefix),
		Kind:      domain.EntryCommand,
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Command:   &c,
		Result:    &result,
	}
	_, err = s.db.Exec(`
		INSERT INTO entries (id, channel, kind, sender, command_raw, result_json, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM entries WHERE channel = ?))`,
		e.ID, channel, string(e.Kind), e.Sender, raw, string(resultJSON),
		e.Timestamp.Format(timeLayout), channel)
	if err != nil {
		return domain.FeedEntry{}, fmt.Errorf("save command: %w", err)
	}
	return e, nil
}

// EntriesSince returns entries newer than the given timestamp, oldest
// first. A zero since returns the most recent page.
func (s *Store) EntriesSince(channel string, since time.Time, limit int) ([]domain.FeedEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if since.IsZero() {
		// Latest page: fetch newest rows, then flip to ascending.
		rows, err := s.db.Query(`
			SELECT id, kind, sender, recipient, text, command_raw, result_json, created_at
			FROM entries WHERE channel = ?
			ORDER BY sequence DESC LIMIT ?`, channel, limit)
		if err != nil {
			return nil, fmt.Errorf("entries since: %w", err)
		}
		entries, err := scanEntries(rows)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		return entries, nil
	}
	rows, err := s.db.Query(`
		SELECT id, kind, sender, recipient, text, command_raw, result_json, created_at
		FROM entries WHERE channel = ? AND created_at > ?
		ORDER BY sequence LIMIT ?`,
		channel, since.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("entries since: %w", err)
	}
	return scanEntries(rows)
}

// EntriesBefore returns up to limit entries older than the entry with
// the given id, oldest first. Used by the "load older" pagination path.
func (s *Store) EntriesBefore(channel, beforeID string, limit int) ([]domain.FeedEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var seq int
	err := s.db.QueryRow(`SELECT sequence FROM entries WHERE channel = ? AND id = ?`, channel, beforeID).Scan(&seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entries before: %w", err)
	}
	rows, err := s.db.Query(`
		SELECT id, kind, sender, recipient, text, command_raw, result_json, created_at
		FROM entries WHERE channel = ? AND sequence < ?
		ORDER BY sequence DESC LIMIT ?`, channel, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("entries before: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func scanEntries(rows *sql.Rows) ([]domain.FeedEntry, error) {
	defer rows.Close()
	var entries []domain.FeedEntry
	for rows.Next() {
		var (
			e          domain.FeedEntry
			kind       string
			commandRaw string
			resultJSON string
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Sender, &e.Recipient, &e.Text, &commandRaw, &resultJSON, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EntryKind(kind)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.Timestamp = ts
		}
		if commandRaw != "" {
			if c := parseRaw(commandRaw); c != nil {
				e.Command = c
			} else {
				e.Command = &domain.Command{Raw: commandRaw}
			}
		}
		if resultJSON != "" {
			var r domain.CommandResult
			if err := json.Unmarshal([]byte(resultJSON), &r); err == nil {
				e.Result = &r
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// parseRaw splits a raw "/name args" command string back into parts.
// Returns nil if the text does not look like a command.
func parseRaw(raw string) *domain.Command {
	if len(raw) < 2 || raw[0] != '/' {
		return nil
	}
	name := raw[1:]
	args := ""
	for i, r := range name {
		if r == ' ' || r == '\t' {
			args = name[i+1:]
			name = name[:i]
			break
		}
	}
	return &domain.Command{Name: name, Args: args, Raw: raw}
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// CreateTask inserts a task row for a channel's board.
func (s *Store) CreateTask(channel, title, status, branch string, costUSD float64) (*domain.Task, error) {
	if err := s.EnsureChannel(channel); err != nil {
		return nil, err
	}
	t := &domain.Task{
		Channel:   channel,
		Title:     title,
		Status:    status,
		Branch:    branch,
		CostUSD:   costUSD,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	res, err := s.db.Exec(`
		INSERT INTO tasks (channel, title, status, branch, cost_usd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		channel, title, status, branch,
		decimal.NewFromFloat(costUSD).String(),
		t.CreatedAt.Format(timeLayout), t.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	t.ID = strconv.FormatInt(n, 10)
	return t, nil
}

// UpdateTaskStatus moves a task to a new status and bumps updated_at.
func (s *Store) UpdateTaskStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// Tasks returns all tasks for a channel, newest update first.
func (s *Store) Tasks(channel string) ([]domain.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, channel, title, status, branch, cost_usd, created_at, updated_at
		FROM tasks WHERE channel = ? ORDER BY updated_at DESC`, channel)
	if err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	return scanTasks(rows)
}

// TaskByID looks up a single task by its numeric id. A non-numeric id
// can never match a row, so it reports sql.ErrNoRows like any other
// missing task.
func (s *Store) TaskByID(id string) (*domain.Task, error) {
	n, convErr := strconv.ParseInt(id, 10, 64)
	if convErr != nil {
		return nil, sql.ErrNoRows
	}
	rows, err := s.db.Query(`
		SELECT id, channel, title, status, branch, cost_usd, created_at, updated_at
		FROM tasks WHERE id = ?`, n)
	if err != nil {
		return nil, fmt.Errorf("task by id: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, sql.ErrNoRows
	}
	return &tasks[0], nil
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		var (
			t                    domain.Task
			cost                 string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.Channel, &t.Title, &t.Status, &t.Branch, &cost, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d, err := decimal.NewFromString(cost); err == nil {
			t.CostUSD, _ = d.Float64()
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			t.UpdatedAt = ts
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CostSummary aggregates task spend for a channel. Sums are carried in
// decimal so repeated small charges do not drift, and converted to
// float only at the API edge.
func (s *Store) CostSummary(channel string, now time.Time) (domain.CostResult, error) {
	tasks, err := s.Tasks(channel)
	if err != nil {
		return domain.CostResult{}, err
	}
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(now.Weekday()))

	today := decimal.Zero
	week := decimal.Zero
	for _, t := range tasks {
		cost := decimal.NewFromFloat(t.CostUSD)
		if !t.UpdatedAt.Before(dayStart) {
			today = today.Add(cost)
		}
		if !t.UpdatedAt.Before(weekStart) {
			week = week.Add(cost)
		}
	}

	// Tasks() is newest-first; re-rank by spend for the report.
	top := make([]domain.Task, len(tasks))
	copy(top, tasks)
	sort.SliceStable(top, func(a, b int) bool { return top[a].CostUSD > top[b].CostUSD })
	if len(top) > 5 {
		top = top[:5]
	}
	result := domain.CostResult{}
	result.Today, _ = today.Float64()
	result.ThisWeek, _ = week.Float64()
	for _, t := range top {
		result.TopTasks = append(result.TopTasks, domain.TaskCost{TaskID: t.ID, Title: t.Title, CostUSD: t.CostUSD})
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Snapshots (diff inputs)
// ---------------------------------------------------------------------------

// Snapshot holds the base and head content of one file in one repo for
// a task's branch. The daemon diffs base against head on request.
type Snapshot struct {
	TaskID   string
	Repo     string
	Path     string
	BaseText string
	HeadText string
}

// AddSnapshot records (or replaces) a file snapshot for a task.
func (s *Store) AddSnapshot(snap Snapshot) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO snapshots (task_id, repo, path, base_text, head_text)
		VALUES (?, ?, ?, ?, ?)`,
		snap.TaskID, snap.Repo, snap.Path, snap.BaseText, snap.HeadText)
	if err != nil {
		return fmt.Errorf("add snapshot: %w", err)
	}
	return nil
}

// SnapshotsForTask returns all file snapshots for a task, grouped by
// repo in stable (repo, path) order.
func (s *Store) SnapshotsForTask(taskID string) ([]Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT task_id, repo, path, base_text, head_text
		FROM snapshots WHERE task_id = ? ORDER BY repo, path`, taskID)
	if err != nil {
		return nil, fmt.Errorf("snapshots for task: %w", err)
	}
	defer rows.Close()
	var snaps []Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.TaskID, &sn.Repo, &sn.Path, &sn.BaseText, &sn.HeadText); err != nil {
			return nil, err
		}
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}
