package environment

import "sync"

// Guard holds the in-process gate for one operation.
type Guard struct {
	store   *Store
	version string
	once    sync.Once
}

// Begin raises the global in-process flag and the IsInProcess flag of
// version, regardless of whether another operation already holds it.
func (s *Store) Begin(version string) *Guard {
	s.mu.Lock()
	s.acquireLocked(version)
	s.publishLocked()
	return &Guard{store: s, version: version}
}

// TryBegin is Begin, failing with ErrBusy while another operation runs.
func (s *Store) TryBegin(version string) (*Guard, error) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.acquireLocked(version)
	s.publishLocked()
	return &Guard{store: s, version: version}, nil
}

func (s *Store) acquireLocked(version string) {
	s.inProcess = true
	if idx, ok := s.findLocked(version); ok {
		s.records[idx].IsInProcess = true
	}
}

// End clears the flags raised by Begin. It is safe to call more than once.
func (g *Guard) End() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		s := g.store
		s.mu.Lock()
		s.inProcess = false
		if idx, ok := s.findLocked(g.version); ok {
			s.records[idx].IsInProcess = false
		}
		s.publishLocked()
	})
}
