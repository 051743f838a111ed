package scheduler

import "sync"

// alertedSet is the bounded set of event ids already alerted for in this
// process lifetime. It is written by the alert-check task and read nowhere
// else, but a forced fetch can run concurrently, so access is locked.
type alertedSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newAlertedSet() *alertedSet {
	return &alertedSet{ids: make(map[string]struct{})}
}

func (s *alertedSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add marks an id as alerted. Done before dispatch so a partially failed
// delivery is not retried indefinitely.
func (s *alertedSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Remove evicts an id once its event has ended.
func (s *alertedSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *alertedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// ResetIfAbove clears the whole set once it passes the high-water mark,
// bounding memory. A still-active event can be re-alerted after a clear;
// accepted tradeoff.
func (s *alertedSet) ResetIfAbove(highWater int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if highWater <= 0 || len(s.ids) <= highWater {
		return false
	}
	s.ids = make(map[string]struct{})
	return true
}
