package command

import (
	"strings"
	"unicode"

	"github.com/crewdlabs/crewd/internal/domain"
)

// Mode classifies the live text buffer.
type Mode int

const (
	// ModePlain: the buffer is an ordinary chat message.
	ModePlain Mode = iota
	// ModeTypingName: the buffer starts with the sigil and the user is
	// still completing the command word.
	ModeTypingName
	// ModeArgEntry: a registered command name followed by whitespace;
	// the user is typing its arguments.
	ModeArgEntry
)

// Classification is the classifier's output: the derived mode, the
// autocomplete query while typing a name, and the parsed command once
// a registered name is complete.
type Classification struct {
	Mode  Mode
	Query string
	Cmd   *domain.Command
	Def   Def
}

// Classify derives the input mode from the full text buffer.
//
// An unrecognized slash-prefixed message falls back to plain: it is
// sent as chat text, never executed. A bare sigil with trailing
// whitespace is still typing-name with an empty query.
func Classify(buffer string) Classification {
	if !strings.HasPrefix(buffer, Sigil) {
		return Classification{Mode: ModePlain}
	}
	rest := buffer[len(Sigil):]
	ws := strings.IndexFunc(rest, unicode.IsSpace)
	if ws < 0 {
		return Classification{Mode: ModeTypingName, Query: rest}
	}
	name := rest[:ws]
	if name == "" {
		return Classification{Mode: ModeTypingName, Query: ""}
	}
	def, ok := Lookup(name)
	if !ok {
		return Classification{Mode: ModePlain}
	}
	return Classification{
		Mode: ModeArgEntry,
		Def:  def,
		Cmd: &domain.Command{
			Name: name,
			Args: rest[ws+1:],
			Raw:  buffer,
		},
	}
}

// ExtractCwdFlag scans a shell-like argument string for a `-d <path>`
// flag and returns the path. The match is a naive token scan: quoting
// is not understood, so a literal "-d" inside a quoted argument is
// picked up too. Known limitation, kept deliberately.
func ExtractCwdFlag(args string) (string, bool) {
	fields := strings.Fields(args)
	for i, f := range fields {
		if f == "-d" && i+1 < len(fields) {
			return fields[i+1], true
		}
	}
	return "", false
}

// StripCwdFlag removes the first `-d <path>` pair from a shell-like
// argument string. Applied only at dispatch time; the displayed args
// keep the flag until then.
func StripCwdFlag(args string) string {
	fields := strings.Fields(args)
	for i, f := range fields {
		if f == "-d" && i+1 < len(fields) {
			return strings.Join(append(fields[:i:i], fields[i+2:]...), " ")
		}
	}
	return args
}
