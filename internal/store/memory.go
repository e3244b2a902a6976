package store

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// AppState is the last known lifecycle outcome of an app.
type AppState struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Operation string    `json:"operation"`
	Version   string    `json:"version,omitempty"`
	PID       int       `json:"pid,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryStore keeps app states in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]AppState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]AppState)}
}

// Upsert records st. An empty Version or a zero PID keeps the previous value,
// so a start does not forget which version was deployed.
func (s *MemoryStore) Upsert(st AppState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.items[st.Name]; ok {
		if st.Version == "" {
			st.Version = prev.Version
		}
		if st.PID == 0 && st.Operation != "stop" {
			st.PID = prev.PID
		}
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	s.items[st.Name] = st
}

// List returns all states sorted by app name.
func (s *MemoryStore) List() []AppState {
	s.mu.RLock()
	out := make([]AppState, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b AppState) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *MemoryStore) Get(name string) (AppState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[name]
	return v, ok
}
