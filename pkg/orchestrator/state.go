package orchestrator

import "sync"

// StateStore is shared per-agent key/value state with last-write-wins
// semantics. Each call updates a single entry atomically.
type StateStore struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{data: make(map[string]map[string]interface{})}
}

// Set stores value under agentName/key, replacing any previous value.
func (s *StateStore) Set(agentName, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[agentName]
	if !ok {
		entries = make(map[string]interface{})
		s.data[agentName] = entries
	}
	entries[key] = value
}

// Get returns the value under agentName/key.
func (s *StateStore) Get(agentName, key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[agentName][key]
	return v, ok
}

// Delete removes agentName/key. It returns false if the entry was absent.
func (s *StateStore) Delete(agentName, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.data[agentName]
	if !ok {
		return false
	}
	if _, ok := entries[key]; !ok {
		return false
	}
	delete(entries, key)
	if len(entries) == 0 {
		delete(s.data, agentName)
	}
	return true
}

// Snapshot returns a copy of every entry held for agentName.
func (s *StateStore) Snapshot(agentName string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.data[agentName]))
	for k, v := range s.data[agentName] {
		out[k] = v
	}
	return out
}
