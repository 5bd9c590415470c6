package remote

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// SyncError reports a write that succeeded locally but did not reach the remote.
type SyncError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Mirror decorates a local store. The local store stays authoritative; every
// successful local write is then pushed to the remote. Concurrent writers to
// the same remote resolve by last write wins.
type Mirror struct {
	local      tracking.Store
	client     *Client
	normalizer tracking.Normalizer
}

// NewMirror wraps local so writes are mirrored through client. Pulled events
// are normalized in the polarity convention, which is what Save sends.
func NewMirror(local tracking.Store, client *Client) *Mirror {
	return &Mirror{
		local:      local,
		client:     client,
		normalizer: tracking.NewNormalizer(emotion.ConventionPolarity),
	}
}

// Save writes locally, then remotely, and reports both outcomes.
func (m *Mirror) Save(ctx context.Context, s tracking.Session) tracking.WriteResult {
	if err := m.local.Upsert(ctx, s); err != nil {
		return tracking.WriteResult{Err: err}
	}
	if _, err := m.client.Save(ctx, tracking.ToDocument(s)); err != nil {
		syncErr := &SyncError{SessionID: s.ID, Op: "save", Err: err}
		log.Printf("[sync] %v", syncErr)
		return tracking.WriteResult{SyncErr: syncErr}
	}
	return tracking.WriteResult{}
}

// Upsert returns only the local outcome. Use Save to see remote failures.
func (m *Mirror) Upsert(ctx context.Context, s tracking.Session) error {
	return m.Save(ctx, s).Err
}

func (m *Mirror) List(ctx context.Context) ([]tracking.Session, error) {
	return m.local.List(ctx)
}

func (m *Mirror) FindByID(ctx context.Context, id string) (tracking.Session, bool, error) {
	return m.local.FindByID(ctx, id)
}

// Delete removes locally and then remotely. A remote that no longer has the
// session counts as success.
func (m *Mirror) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := m.local.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := m.client.Delete(ctx, id); err != nil {
		log.Printf("[sync] %v", &SyncError{SessionID: id, Op: "delete", Err: err})
	}
	return removed, nil
}

// Clear only clears the local store.
func (m *Mirror) Clear(ctx context.Context) error {
	return m.local.Clear(ctx)
}

// Pull upserts every remote document into the local store and returns how
// many were applied. Events are normalized and summaries recomputed from them.
func (m *Mirror) Pull(ctx context.Context) (int, error) {
	docs, err := m.client.List(ctx)
	if err != nil {
		return 0, &SyncError{Op: "pull", Err: err}
	}
	applied := 0
	for _, doc := range docs {
		if !doc.Valid() {
			log.Printf("[sync] skipping remote document %q without required fields", doc.SessionID)
			continue
		}
		if err := m.local.Upsert(ctx, doc.ToSession(m.normalizer)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
