// Package local keeps the whole session collection as one JSON array under a
// namespaced key, the way the browser client kept it in localStorage.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// DefaultKey is the namespace the collection is stored under.
const DefaultKey = "emotion_tracking_data"

// CorruptError describes a stored value that could not be decoded. Reads
// log it and continue with an empty collection.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt collection under %q: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// record is the stored shape of one session.
type record struct {
	ID             string           `json:"id"`
	StartTime      time.Time        `json:"startTime"`
	EndTime        *time.Time       `json:"endTime"`
	Data           []tracking.Event `json:"data"`
	TotalScore     float64          `json:"totalScore"`
	EmotionSummary tracking.Summary `json:"emotionSummary"`
}

func toRecord(s tracking.Session) record {
	data := s.Events
	if data == nil {
		data = []tracking.Event{}
	}
	return record{
		ID:             s.ID,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Data:           data,
		TotalScore:     s.TotalScore,
		EmotionSummary: s.EmotionSummary,
	}
}

// session ignores the stored totals and derives them from the events.
func (r record) session() tracking.Session {
	s := tracking.Session{
		ID:        r.ID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Events:    r.Data,
	}
	s.Recompute()
	return s
}

// Store implements tracking.Store over a Blob. Each mutation reads the
// collection, changes it and writes it back under one lock; a failed write
// leaves the previous value in place.
type Store struct {
	blob Blob
	key  string
	mu   sync.Mutex
}

// NewStore returns a Store keeping its collection under key.
func NewStore(blob Blob, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{blob: blob, key: key}
}

func (s *Store) Upsert(ctx context.Context, session tracking.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, tracking.UpsertInto(items, session))
}

func (s *Store) List(ctx context.Context) ([]tracking.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) FindByID(ctx context.Context, id string) (tracking.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return tracking.Session{}, false, err
	}
	if i := tracking.IndexOf(items, id); i >= 0 {
		return items[i], true, nil
	}
	return tracking.Session{}, false, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	items, removed := tracking.RemoveFrom(items, id)
	if !removed {
		return false, nil
	}
	return true, s.save(ctx, items)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.blob.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) ([]tracking.Session, error) {
	data, ok, err := s.blob.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if !ok || len(data) == 0 {
		return []tracking.Session{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("[storage] %v; starting from an empty collection", &CorruptError{Key: s.key, Err: err})
		return []tracking.Session{}, nil
	}

	items := make([]tracking.Session, 0, len(raw))
	for i, entry := range raw {
		var r record
		if err := json.Unmarshal(entry, &r); err != nil || r.ID == "" {
			log.Printf("[storage] skipping malformed entry %d under %q", i, s.key)
			continue
		}
		items = append(items, r.session())
	}
	return items, nil
}

func (s *Store) save(ctx context.Context, items []tracking.Session) error {
	records := make([]record, len(items))
	for i, item := range items {
		records[i] = toRecord(item)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.blob.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
