package tracking

import (
	"context"
	"sort"
	"sync"
)

// Store persists ended sessions keyed by id.
//
// Reads never fail on missing ids: FindByID and Delete report absence with a
// false flag. Upsert replaces an existing entry in place or appends a new one.
type Store interface {
	Upsert(ctx context.Context, session Session) error
	List(ctx context.Context) ([]Session, error)
	FindByID(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// WriteResult separates the authoritative local outcome from the outcome of
// mirroring the write elsewhere.
type WriteResult struct {
	Err     error
	SyncErr error
}

// Saver is implemented by stores that mirror writes and want the mirror
// outcome reported without affecting the local one.
type Saver interface {
	Save(ctx context.Context, session Session) WriteResult
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Session
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied sessions.
func NewMemoryStore(items ...Session) *MemoryStore {
	s := &MemoryStore{}
	for _, item := range items {
		s.items = UpsertInto(s.items, item)
	}
	return s
}

func (s *MemoryStore) Upsert(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = UpsertInto(s.items, session)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, len(s.items))
	for i, item := range s.items {
		out[i] = item.Clone()
	}
	return out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := IndexOf(s.items, id); i >= 0 {
		return s.items[i].Clone(), true, nil
	}
	return Session{}, false, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed bool
	s.items, removed = RemoveFrom(s.items, id)
	return removed, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	return nil
}

// IndexOf returns the position of id in sessions, or -1.
func IndexOf(sessions []Session, id string) int {
	for i, s := range sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// UpsertInto replaces the session with the same id in place, else appends.
func UpsertInto(sessions []Session, session Session) []Session {
	session = session.Clone()
	if i := IndexOf(sessions, session.ID); i >= 0 {
		sessions[i] = session
		return sessions
	}
	return append(sessions, session)
}

// RemoveFrom returns sessions without id and whether anything was removed.
func RemoveFrom(sessions []Session, id string) ([]Session, bool) {
	i := IndexOf(sessions, id)
	if i < 0 {
		return sessions, false
	}
	out := make([]Session, 0, len(sessions)-1)
	out = append(out, sessions[:i]...)
	out = append(out, sessions[i+1:]...)
	return out, true
}

// SortByStartDesc orders sessions newest first, the order used for display.
func SortByStartDesc(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}
