// Package feed merges three independent entry sources into one ordered,
// de-duplicated message feed: optimistic local entries, command
// placeholders being resolved in flight, and batches polled from the
// backend. All three go through the same id-keyed paths, so a poll tick
// arriving mid-flight can neither drop nor duplicate a pending command.
package feed

import (
	"sort"
	"time"

	"github.com/crewdlabs/crewd/internal/domain"
)

type record struct {
	entry domain.FeedEntry
	seq   int
}

// Feed is the synchronizer for one channel. It is not safe for
// concurrent use; in the TUI all mutations happen on the update loop.
type Feed struct {
	records  []record
	index    map[string]int // id -> position in records
	nextSeq  int
	lastSeen time.Time
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{index: make(map[string]int)}
}

// Len returns the number of distinct entries.
func (f *Feed) Len() int { return len(f.records) }

// Contains reports whether an entry with the given id is in the feed.
func (f *Feed) Contains(id string) bool {
	_, ok := f.index[id]
	return ok
}

// Get returns the entry with the given id.
func (f *Feed) Get(id string) (domain.FeedEntry, bool) {
	i, ok := f.index[id]
	if !ok {
		return domain.FeedEntry{}, false
	}
	return f.records[i].entry, true
}

// AppendLocal inserts an optimistic entry created on submit. Ids are
// caller-minted and must be fresh; a duplicate id is ignored.
func (f *Feed) AppendLocal(e domain.FeedEntry) {
	if _, ok := f.index[e.ID]; ok {
		return
	}
	f.append(e)
}

// ApplyPoll merges a polled batch. Duplicates across polls are
// expected: an id already in the feed is skipped, except that a
// resolved command from the server upgrades a local pending
// placeholder with the same id (the copy carrying more information
// wins). Applying the same batch twice is a no-op.
func (f *Feed) ApplyPoll(batch []domain.FeedEntry) {
	for _, e := range batch {
		if i, ok := f.index[e.ID]; ok {
			existing := &f.records[i].entry
			if existing.Pending() && e.Result != nil && !e.Result.IsZero() {
				existing.Result = e.Result
			}
		} else {
			f.append(e)
		}
		if e.Timestamp.After(f.lastSeen) {
			f.lastSeen = e.Timestamp
		}
	}
}

// Resolve patches a command placeholder with its concrete result,
// located by stable id, never by position. Placeholders are mutated
// exactly once: a second resolution for the same id is dropped.
func (f *Feed) Resolve(id string, result domain.CommandResult) bool {
	i, ok := f.index[id]
	if !ok {
		return false
	}
	if !f.records[i].entry.Pending() {
		return false
	}
	f.records[i].entry.Result = &result
	return true
}

// Rebind replaces a temporary id with the server-assigned one at
// persistence confirmation. The entry keeps its insertion slot, so no
// duplicate appears and ordering is untouched. If a poll already
// delivered the server copy, the local entry (which carries the
// resolved result) wins and the polled duplicate is removed.
func (f *Feed) Rebind(oldID, newID string) bool {
	i, ok := f.index[oldID]
	if !ok || oldID == newID {
		return ok
	}
	if j, dup := f.index[newID]; dup {
		f.removeAt(j)
		i = f.index[oldID] // positions shifted
	}
	delete(f.index, oldID)
	f.records[i].entry.ID = newID
	f.index[newID] = i
	return true
}

// PrependOlder merges a "load older" page. Known ids are skipped; new
// entries keep the batch's relative order and sort before existing
// entries with equal timestamps only if their timestamps say so.
func (f *Feed) PrependOlder(batch []domain.FeedEntry) int {
	added := 0
	for _, e := range batch {
		if _, ok := f.index[e.ID]; ok {
			continue
		}
		f.append(e)
		added++
	}
	return added
}

// Entries returns the feed in render order: non-decreasing timestamp,
// ties broken by insertion sequence. The returned slice is a copy.
func (f *Feed) Entries() []domain.FeedEntry {
	recs := make([]record, len(f.records))
	copy(recs, f.records)
	sort.SliceStable(recs, func(a, b int) bool {
		if !recs[a].entry.Timestamp.Equal(recs[b].entry.Timestamp) {
			return recs[a].entry.Timestamp.Before(recs[b].entry.Timestamp)
		}
		return recs[a].seq < recs[b].seq
	})
	out := make([]domain.FeedEntry, len(recs))
	for i, r := range recs {
		out[i] = r.entry
	}
	return out
}

// LastSeen is the poll cursor: the newest timestamp any poll batch has
// delivered. Zero until the first poll lands.
func (f *Feed) LastSeen() time.Time { return f.lastSeen }

// EarliestID is the pagination cursor: the id of the earliest
// server-confirmed entry. Temp-id entries are skipped because the
// backend cannot page relative to an id it has never issued.
func (f *Feed) EarliestID() string {
	for _, e := range f.Entries() {
		if !domain.IsTempID(e.ID) {
			return e.ID
		}
	}
	return ""
}

// PendingCount returns the number of unresolved command placeholders.
func (f *Feed) PendingCount() int {
	n := 0
	for _, r := range f.records {
		if r.entry.Pending() {
			n++
		}
	}
	return n
}

func (f *Feed) append(e domain.FeedEntry) {
	f.index[e.ID] = len(f.records)
	f.records = append(f.records, record{entry: e, seq: f.nextSeq})
	f.nextSeq++
}

func (f *Feed) removeAt(i int) {
	id := f.records[i].entry.ID
	delete(f.index, id)
	f.records = append(f.records[:i], f.records[i+1:]...)
	for j := i; j < len(f.records); j++ {
		f.index[f.records[j].entry.ID] = j
	}
}
