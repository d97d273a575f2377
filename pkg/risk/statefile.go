package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// DayState is the persisted per-day snapshot of rule state. It lets a
// restarted process resume a halted or armed day instead of treating the
// restart as a fresh morning. Pending close retries are not persisted; the
// rules re-derive them from live snapshots.
type DayState struct {
	Day           string               `msgpack:"day"`
	Phase         int                  `msgpack:"phase"`
	TrailingArmed bool                 `msgpack:"trailing_armed"`
	TrailingPeak  float64              `msgpack:"trailing_peak"`
	Rules         map[string]RuleState `msgpack:"rules"`
	PendingCancel bool                 `msgpack:"pending_cancel"`
	PendingKill   bool                 `msgpack:"pending_kill"`
	KillConfirmed bool                 `msgpack:"kill_confirmed"`
}

// StateFile persists DayState with an atomic write-then-rename.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (f *StateFile) Save(st *DayState) error {
	data, err := msgpack.Marshal(st)
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("statefile: mkdir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("statefile: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// Load returns nil with no error when no snapshot exists yet.
func (f *StateFile) Load() (*DayState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statefile: read: %w", err)
	}
	var st DayState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("statefile: unmarshal: %w", err)
	}
	return &st, nil
}
