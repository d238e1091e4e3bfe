package environment

import (
	"fmt"
	"sync"
)

// Store is the in-memory ordered registry of environment records.
type Store struct {
	mu        sync.Mutex
	records   []Record
	inProcess bool
	dialog    string

	observers map[int]Observer
	nextID    int
	seq       uint64

	// notifyMu serializes observer callbacks; delivered is guarded by it.
	notifyMu  sync.Mutex
	delivered uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Upsert merges p into the record with the same version, appending a new
// record when none exists, and re-sorts the registry.
func (s *Store) Upsert(p *Patch) error {
	if p == nil || p.Version == "" {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	s.upsertLocked(p)
	s.publishLocked()
	return nil
}

// Update runs fn with the current record under the store lock and applies
// the patch it returns. A nil patch leaves the store untouched. The patch
// version is forced to version.
func (s *Store) Update(version string, fn func(current Record, ok bool) *Patch) error {
	if version == "" || fn == nil {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	current, ok := s.findLocked(version)
	var snapshot Record
	if ok {
		snapshot = s.records[current].clone()
	}
	p := fn(snapshot, ok)
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	p.Version = version
	s.upsertLocked(p)
	s.publishLocked()
	return nil
}

// UpsertToolchain merges tc into the toolchain list of environment
// envVersion, keyed by toolchain version.
func (s *Store) UpsertToolchain(envVersion string, tc Toolchain) error {
	if envVersion == "" || tc.Version == "" {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	idx, ok := s.findLocked(envVersion)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEnvironment, envVersion)
	}

	rec := &s.records[idx]
	merged := false
	for i := range rec.Toolchains {
		if rec.Toolchains[i].Version != tc.Version {
			continue
		}
		if tc.Name != "" {
			rec.Toolchains[i].Name = tc.Name
		}
		if tc.SHA512 != "" {
			rec.Toolchains[i].SHA512 = tc.SHA512
		}
		merged = true
		break
	}
	if !merged {
		rec.Toolchains = append(rec.Toolchains, tc)
	}
	sortToolchains(rec.Toolchains)
	s.publishLocked()
	return nil
}

// Get returns a copy of the record for version.
func (s *Store) Get(version string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.findLocked(version)
	if !ok {
		return Record{}, false
	}
	return s.records[idx].clone(), true
}

// Remove deletes the record for version. Removing an unknown version is a no-op.
func (s *Store) Remove(version string) {
	s.mu.Lock()
	idx, ok := s.findLocked(version)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.publishLocked()
}

// List returns a copy of all records, newest first.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Snapshot returns the current externally visible state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Environments: s.copyLocked(), InProcess: s.inProcess, Dialog: s.dialog}
}

// InProcess reports whether an install or remove operation is running.
func (s *Store) InProcess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProcess
}

// SetInProcess sets the global in-process flag.
func (s *Store) SetInProcess(v bool) {
	s.mu.Lock()
	s.inProcess = v
	s.publishLocked()
}

// ShowDialog publishes a user-facing error message.
func (s *Store) ShowDialog(message string) {
	s.mu.Lock()
	s.dialog = message
	s.publishLocked()
}

// DismissDialog clears the pending dialog message.
func (s *Store) DismissDialog() {
	s.mu.Lock()
	s.dialog = ""
	s.publishLocked()
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mu.Lock()
	s.records = nil
	s.publishLocked()
}

func (s *Store) findLocked(version string) (int, bool) {
	for i := range s.records {
		if s.records[i].Version == version {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) upsertLocked(p *Patch) {
	idx, ok := s.findLocked(p.Version)
	if !ok {
		rec := Record{Version: p.Version}
		p.apply(&rec)
		s.records = append(s.records, rec)
	} else {
		p.apply(&s.records[idx])
	}
	sortRecords(s.records)
}

func (s *Store) copyLocked() []Record {
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out
}

// publishLocked snapshots the state, releases s.mu and notifies observers.
// It must be called with s.mu held. A snapshot older than one already
// delivered is dropped, so observers never see state going backwards.
func (s *Store) publishLocked() {
	s.seq++
	seq := s.seq
	snap := Snapshot{Environments: s.copyLocked(), InProcess: s.inProcess, Dialog: s.dialog}
	observers := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.observers[id]; ok {
			observers = append(observers, fn)
		}
	}

	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq

	for _, fn := range observers {
		fn(snap)
	}
}
