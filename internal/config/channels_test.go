package config

import (
	"slices"
	"testing"
)

func TestChannelStateRoundTrip(t *testing.T) {
	configDirOverride = t.TempDir()
	defer func() { configDirOverride = "" }()

	in := map[string]ChannelState{
		"team-alpha": {Cwd: "/srv/alpha", History: []string{"ls", "make test"}},
		"team-beta":  {Cwd: "/srv/beta"},
	}
	if err := SaveChannelStates(in); err != nil {
		t.Fatalf("SaveChannelStates: %v", err)
	}
	out, err := LoadChannelStates()
	if err != nil {
		t.Fatalf("LoadChannelStates: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("loaded %d channels, want 2", len(out))
	}
	alpha := out["team-alpha"]
	if alpha.Cwd != "/srv/alpha" || !slices.Equal(alpha.History, []string{"ls", "make test"}) {
		t.Errorf("team-alpha state = %+v", alpha)
	}
}

func TestLoadChannelStatesMissingFile(t *testing.T) {
	configDirOverride = t.TempDir()
	defer func() { configDirOverride = "" }()

	out, err := LoadChannelStates()
	if err != nil {
		t.Fatalf("LoadChannelStates on fresh install: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("fresh install should have no channel state, got %v", out)
	}
}
