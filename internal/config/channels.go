package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChannelState is the client-side state persisted per channel:
// the working directory the /shell command runs in and the recall
// history of submitted shell arguments. The in-flight history draft is
// session-transient and never persisted.
type ChannelState struct {
	Cwd     string   `json:"cwd,omitempty"`
	History []string `json:"history,omitempty"`
}

// channelsFilePath returns the path to channels.json.
func channelsFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "channels.json")
}

// LoadChannelStates reads per-channel state keyed by channel name.
// A missing file is a fresh install, not an error.
func LoadChannelStates() (map[string]ChannelState, error) {
	p := channelsFilePath()
	if p == "" {
		return map[string]ChannelState{}, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ChannelState{}, nil
		}
		return nil, fmt.Errorf("reading channel state: %w", err)
	}
	states := make(map[string]ChannelState)
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("parsing channel state: %w", err)
	}
	return states, nil
}

// SaveChannelStates writes the full per-channel state map.
func SaveChannelStates(states map[string]ChannelState) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("no config dir available")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling channel state: %w", err)
	}
	return os.WriteFile(channelsFilePath(), data, 0o600)
}
