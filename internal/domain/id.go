package domain

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ID prefixes. Temp ids are minted client-side for optimistic entries
// and replaced by server ids at persistence time.
const (
	TempIDPrefix    = "tmp"
	MessageIDPrefix = "msg"
	CommandIDPrefix = "cmd"
	EventIDPrefix   = "evt"
)

// NewID returns a prefixed ULID, e.g. "msg_01J9ZK7Q4R...". ULIDs are
// lexicographically sortable by creation time, which keeps id-cursor
// pagination cheap.
func NewID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// IsTempID reports whether the id was minted locally and has not yet
// been confirmed by the server.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix+"_")
}
