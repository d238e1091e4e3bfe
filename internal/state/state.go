// Package state persists what envmgr must remember between runs: whether
// any environment was ever installed, and the journal of staged
// directories whose deletion has not finished yet.
//
// The state file is rewritten atomically (temp file, rename, directory
// sync) so a crash never leaves a truncated journal behind.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersion is written into every state file.
	SchemaVersion = 1
	// FileName is the state file inside the state directory.
	FileName = "state.json"
)

// Deletion is a staged directory that still has to be removed.
type Deletion struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

// State is the persisted manager state.
type State struct {
	Version      int        `json:"version"` // Schema version for future evolution
	HasInstalled bool       `json:"has_installed"`
	Selected     string     `json:"selected,omitempty"`
	Pending      []Deletion `json:"pending_deletions"`
}

// Store reads and writes the state file of one state directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir. Nothing is read until Load.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the state file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load returns the stored state, or an empty state when none exists yet.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Modify loads the state, applies fn and saves the result. Nothing is
// written when fn fails.
func (s *Store) Modify(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return s.saveLocked(st)
}

// RecordInstall notes a successful install of version and selects it.
func (s *Store) RecordInstall(version string) error {
	return s.Modify(func(st *State) error {
		st.HasInstalled = true
		st.Selected = version
		return nil
	})
}

// Unselect clears the selection if it points at version.
func (s *Store) Unselect(version string) error {
	return s.Modify(func(st *State) error {
		if st.Selected == version {
			st.Selected = ""
		}
		return nil
	})
}

// AddPending journals a staged directory of environment for later deletion.
func (s *Store) AddPending(path, environment string, cause error) (Deletion, error) {
	d := Deletion{
		ID:          uuid.New().String(),
		Path:        path,
		Environment: environment,
		Timestamp:   time.Now().UTC(),
		Attempts:    1,
	}
	if cause != nil {
		d.LastError = cause.Error()
	}

	err := s.Modify(func(st *State) error {
		st.Pending = append(st.Pending, d)
		return nil
	})
	if err != nil {
		return Deletion{}, err
	}
	return d, nil
}

// ResolvePending drops the journal entry id, if present.
func (s *Store) ResolvePending(id string) error {
	return s.Modify(func(st *State) error {
		kept := st.Pending[:0]
		for _, d := range st.Pending {
			if d.ID != id {
				kept = append(kept, d)
			}
		}
		st.Pending = kept
		return nil
	})
}

// RecordAttempt bumps the attempt counter of id and stores cause.
func (s *Store) RecordAttempt(id string, cause error) error {
	return s.Modify(func(st *State) error {
		for i := range st.Pending {
			if st.Pending[i].ID == id {
				st.Pending[i].Attempts++
				if cause != nil {
					st.Pending[i].LastError = cause.Error()
				}
			}
		}
		return nil
	})
}

func (s *Store) loadLocked() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Version: SchemaVersion}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.Version == 0 {
		st.Version = SchemaVersion
	}
	return &st, nil
}

func (s *Store) saveLocked(st *State) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	st.Version = SchemaVersion
	if st.Pending == nil {
		st.Pending = []Deletion{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	finalPath := s.Path()
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	// Sync directory to ensure rename is durable
	df, err := os.Open(s.dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}
	return nil
}
