package command

import "testing"

func TestLookup(t *testing.T) {
	for _, name := range []string{"shell", "status", "diff", "cost"} {
		if _, ok := Lookup(name); !ok {
			t.Errorf("Lookup(%q) not found", name)
		}
	}
	if _, ok := Lookup("deploy"); ok {
		t.Error("Lookup(deploy) should miss")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"shell", "status", "diff", "cost"}},
		{"s", []string{"shell", "status"}},
		{"sh", []string{"shell"}},
		{"shell", []string{"shell"}},
		{"shellx", nil},
		{"z", nil},
		{"S", nil}, // case-sensitive
	}
	for _, tt := range tests {
		got := Filter(tt.prefix)
		if len(got) != len(tt.want) {
			t.Errorf("Filter(%q) returned %d matches, want %d", tt.prefix, len(got), len(tt.want))
			continue
		}
		for i, d := range got {
			if d.Name != tt.want[i] {
				t.Errorf("Filter(%q)[%d] = %q, want %q", tt.prefix, i, d.Name, tt.want[i])
			}
		}
	}
}

// Extending a query by one character can only narrow the match set.
func TestFilterMonotonic(t *testing.T) {
	queries := []string{"", "s", "st", "sta", "stat", "statu", "status"}
	for i := 1; i < len(queries); i++ {
		wider := Filter(queries[i-1])
		narrower := Filter(queries[i])
		in := make(map[string]bool, len(wider))
		for _, d := range wider {
			in[d.Name] = true
		}
		for _, d := range narrower {
			if !in[d.Name] {
				t.Errorf("Filter(%q) contains %q missing from Filter(%q)", queries[i], d.Name, queries[i-1])
			}
		}
	}
}

func TestFilterPreservesRegistrationOrder(t *testing.T) {
	got := Filter("")
	for i := 1; i < len(got); i++ {
		var prev, cur int
		for j, d := range Defs {
			if d.Name == got[i-1].Name {
				prev = j
			}
			if d.Name == got[i].Name {
				cur = j
			}
		}
		if cur < prev {
			t.Fatalf("Filter result out of registration order: %q before %q", got[i-1].Name, got[i].Name)
		}
	}
}
