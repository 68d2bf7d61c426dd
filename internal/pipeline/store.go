package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateStore persists the final run state.
type StateStore interface {
	Save(ctx context.Context, state RunState) error
}

// FileStore writes the run state as indented JSON to Path.
type FileStore struct {
	Path string
}

// Save implements StateStore. Parent directories are created as needed.
func (f FileStore) Save(_ context.Context, state RunState) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	if err := os.WriteFile(f.Path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}
	return nil
}

// LoadState reads a run state previously written by FileStore.
func LoadState(path string) (RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunState{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return state, nil
}
