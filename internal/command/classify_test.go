package command

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		buffer   string
		mode     Mode
		query    string
		cmdName  string
		cmdArgs  string
	}{
		{name: "empty buffer", buffer: "", mode: ModePlain},
		{name: "plain text", buffer: "hello team", mode: ModePlain},
		{name: "bare sigil", buffer: "/", mode: ModeTypingName, query: ""},
		{name: "typing name", buffer: "/sh", mode: ModeTypingName, query: "sh"},
		{name: "complete name no space", buffer: "/shell", mode: ModeTypingName, query: "shell"},
		{name: "unregistered name still typing", buffer: "/frobnicate", mode: ModeTypingName, query: "frobnicate"},
		{name: "bare sigil with space", buffer: "/ ", mode: ModeTypingName, query: ""},
		{name: "registered with space", buffer: "/shell ", mode: ModeArgEntry, cmdName: "shell", cmdArgs: ""},
		{name: "registered with args", buffer: "/shell ls -la", mode: ModeArgEntry, cmdName: "shell", cmdArgs: "ls -la"},
		{name: "numeric grammar args", buffer: "/diff 42", mode: ModeArgEntry, cmdName: "diff", cmdArgs: "42"},
		{name: "unrecognized with space is plain", buffer: "/frobnicate now", mode: ModePlain},
		{name: "sigil mid-buffer is plain", buffer: "see /shell", mode: ModePlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.buffer)
			if c.Mode != tt.mode {
				t.Fatalf("Classify(%q).Mode = %v, want %v", tt.buffer, c.Mode, tt.mode)
			}
			if c.Mode == ModeTypingName && c.Query != tt.query {
				t.Errorf("query = %q, want %q", c.Query, tt.query)
			}
			if c.Mode == ModeArgEntry {
				if c.Cmd == nil {
					t.Fatal("arg-entry classification missing command")
				}
				if c.Cmd.Name != tt.cmdName || c.Cmd.Args != tt.cmdArgs {
					t.Errorf("cmd = {%q %q}, want {%q %q}", c.Cmd.Name, c.Cmd.Args, tt.cmdName, tt.cmdArgs)
				}
				if c.Cmd.Raw != tt.buffer {
					t.Errorf("raw = %q, want %q", c.Cmd.Raw, tt.buffer)
				}
			}
		})
	}
}

func TestExtractCwdFlag(t *testing.T) {
	tests := []struct {
		args string
		path string
		ok   bool
	}{
		{"ls -la", "", false},
		{"ls -d /tmp", "/tmp", true},
		{"-d /var/log tail -f syslog", "/var/log", true},
		{"ls -d", "", false}, // flag without value
		{"make -C build -d /srv", "/srv", true},
		// Naive token scan: quoting is not understood. Both behaviors
		// below are deliberate limitations, not bugs to fix.
		{`ls -d "/tmp/my dir"`, `"/tmp/my`, true},
		{`sh -c "rmdir -d x"`, `x"`, true},
	}
	for _, tt := range tests {
		path, ok := ExtractCwdFlag(tt.args)
		if ok != tt.ok || path != tt.path {
			t.Errorf("ExtractCwdFlag(%q) = (%q, %v), want (%q, %v)", tt.args, path, ok, tt.path, tt.ok)
		}
	}
}

func TestStripCwdFlag(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"ls -la", "ls -la"},
		{"ls -d /tmp", "ls"},
		{"-d /tmp ls", "ls"},
		{"ls -d /tmp -d /var", "ls -d /var"}, // only the first pair is stripped
		{"ls -d", "ls -d"},
	}
	for _, tt := range tests {
		if got := StripCwdFlag(tt.args); got != tt.want {
			t.Errorf("StripCwdFlag(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
