package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists GovernorState as JSON, written atomically via a temp file
// and rename so a crash mid-save never leaves a torn state file.
type Store struct {
	path string
}

// NewStore creates a store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted state. A missing file yields a fresh Normal
// state, not an error.
func (s *Store) Load() (*GovernorState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return NewGovernorState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st GovernorState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if st.Mode == "" {
		st.Mode = ModeNormal
	}

	return &st, nil
}

// Save writes the state durably.
func (s *Store) Save(st *GovernorState) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		return fmt.Errorf("failed to move state file: %w", err)
	}

	return nil
}
