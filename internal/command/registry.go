package command

import "strings"

// Sigil marks a text buffer as command intent.
const Sigil = "/"

// ArgGrammar tags how a command's argument string is interpreted.
type ArgGrammar int

const (
	ArgNone ArgGrammar = iota
	ArgShellLike
	ArgNumericTaskID
)

// Def describes a slash command available to the operator.
type Def struct {
	Name        string
	Description string
	Grammar     ArgGrammar
}

// Defs is the single source of truth for all slash commands.
// Registration order is display order: most-used first, not alphabetical.
var Defs = []Def{
	{Name: "shell", Description: "run a shell command in the channel workspace", Grammar: ArgShellLike},
	{Name: "status", Description: "show the team's task board summary", Grammar: ArgNone},
	{Name: "diff", Description: "show per-repo diffs for a task", Grammar: ArgNumericTaskID},
	{Name: "cost", Description: "show spend for today and this week", Grammar: ArgNone},
}

// Lookup returns the command definition for name, if registered.
func Lookup(name string) (Def, bool) {
	for _, d := range Defs {
		if d.Name == name {
			return d, true
		}
	}
	return Def{}, false
}

// Filter returns the commands whose names start with prefix, in
// registration order. An empty prefix matches everything.
func Filter(prefix string) []Def {
	var out []Def
	for _, d := range Defs {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, d)
		}
	}
	return out
}
