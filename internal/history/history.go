// Package history keeps per-channel recall of previously-submitted
// shell-style argument strings, with non-destructive draft
// preservation while the operator walks back through them.
package history

// DefaultCapacity bounds the number of retained entries per channel.
const DefaultCapacity = 100

// notNavigating is the cursor sentinel used when no traversal is active.
const notNavigating = -1

// Store is a bounded, append-only argument history for one channel.
// Traversal only changes what the input buffer displays; the persisted
// list is touched by Append alone.
type Store struct {
	entries  []string
	capacity int
	cursor   int
	draft    string
}

// New creates an empty history with the given capacity. A capacity of
// zero or less falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, cursor: notNavigating}
}

// Restore creates a history pre-filled with persisted entries, oldest
// first. Entries beyond capacity are dropped from the oldest end.
func Restore(entries []string, capacity int) *Store {
	s := New(capacity)
	for _, e := range entries {
		s.Append(e)
	}
	return s
}

// Entries returns a copy of the persisted list, oldest first.
func (s *Store) Entries() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of persisted entries.
func (s *Store) Len() int { return len(s.entries) }

// Append pushes arg to the newest end, evicting the oldest entry when
// over capacity. Callers only append shell-like commands that exited
// cleanly; a failed command should not pollute recall.
func (s *Store) Append(arg string) {
	s.entries = append(s.entries, arg)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
}

// Navigating reports whether a traversal is in progress.
func (s *Store) Navigating() bool { return s.cursor != notNavigating }

// Older moves one step toward the oldest entry and returns the entry
// to display. The first call captures draft (the uncommitted input
// text) so Newer can restore it. At the oldest entry the call is a
// no-op that re-returns that entry. ok is false when there is no
// history to walk.
func (s *Store) Older(draft string) (string, bool) {
	if len(s.entries) == 0 {
		return "", false
	}
	if s.cursor == notNavigating {
		s.draft = draft
		s.cursor = len(s.entries) - 1
	} else if s.cursor > 0 {
		s.cursor--
	}
	return s.entries[s.cursor], true
}

// Newer moves one step toward the newest entry. Stepping past the
// newest slot restores the captured draft and ends the traversal.
// ok is false when no traversal is active.
func (s *Store) Newer() (string, bool) {
	if s.cursor == notNavigating {
		return "", false
	}
	if s.cursor < len(s.entries)-1 {
		s.cursor++
		return s.entries[s.cursor], true
	}
	text := s.draft
	s.cursor = notNavigating
	s.draft = ""
	return text, true
}

// Reset clears the cursor and draft without mutating the persisted
// list. Called on channel switch and on command submission.
func (s *Store) Reset() {
	s.cursor = notNavigating
	s.draft = ""
}
