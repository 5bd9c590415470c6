package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

func shutdown(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestPipelineTwoCyclesProduceDistinctSessions(t *testing.T) {
	ctx := context.Background()
	store := tracking.NewMemoryStore()
	p := NewPipeline("cap", store, Options{})

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "happy", Score: 1.0}))
	first, ok, err := p.CloseSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "sad", Score: -1.0}))
	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "sad", Score: -1.0}))
	second, ok, err := p.CloseSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	shutdown(t, p)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, tracking.Summary{Positive: 1}, all[0].EmotionSummary)
	assert.Equal(t, tracking.Summary{Negative: 2}, all[1].EmotionSummary)
}

func TestPipelineCloseAppliesQueuedEventsInOrder(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline("cap", tracking.NewMemoryStore(), Options{QueueSize: 4})
	defer shutdown(t, p)

	labels := []string{"happy", "sad", "angry", "fearful", "disgusted", "surprised", "neutral"}
	for _, l := range labels {
		require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: l}))
	}

	s, ok, err := p.CloseSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, s.Events, len(labels))
	for i, l := range labels {
		assert.Equal(t, emotion.Label(l), s.Events[i].Emotion)
	}
}

func TestPipelineCloseWithoutSession(t *testing.T) {
	p := NewPipeline("cap", tracking.NewMemoryStore(), Options{})
	defer shutdown(t, p)

	_, ok, err := p.CloseSession(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

type blockingStore struct {
	*tracking.MemoryStore
	release chan struct{}
}

func (s *blockingStore) Upsert(ctx context.Context, session tracking.Session) error {
	<-s.release
	return s.MemoryStore.Upsert(ctx, session)
}

func TestPipelineCloseDoesNotWaitForStore(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{MemoryStore: tracking.NewMemoryStore(), release: make(chan struct{})}
	p := NewPipeline("cap", store, Options{})

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "happy", Score: 1.0}))
	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, ok, err := p.CloseSession(closeCtx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, p.Submit(closeCtx, tracking.RawEvent{Emotion: "sad", Score: -1.0}))
	current, open, err := p.Current(closeCtx)
	require.NoError(t, err)
	require.True(t, open)
	assert.Len(t, current.Events, 1)

	close(store.release)
	shutdown(t, p)

	all, _ := store.List(ctx)
	assert.Len(t, all, 1, "the second session is abandoned on shutdown")
}

func TestPipelineShutdownClosesWhenConfigured(t *testing.T) {
	ctx := context.Background()
	store := tracking.NewMemoryStore()
	p := NewPipeline("cap", store, Options{CloseOnShutdown: true})

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "happy", Score: 1.0}))
	shutdown(t, p)

	all, _ := store.List(ctx)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].EndTime)

	assert.ErrorIs(t, p.Submit(ctx, tracking.RawEvent{}), ErrPipelineClosed)
}

type syncFailingStore struct {
	*tracking.MemoryStore
}

func (s syncFailingStore) Save(ctx context.Context, session tracking.Session) tracking.WriteResult {
	return tracking.WriteResult{
		Err:     s.MemoryStore.Upsert(ctx, session),
		SyncErr: errors.New("remote unreachable"),
	}
}

func TestPipelineReportsSyncFailures(t *testing.T) {
	ctx := context.Background()
	store := syncFailingStore{MemoryStore: tracking.NewMemoryStore()}
	p := NewPipeline("cap", store, Options{})
	updates, unsubscribe := p.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "happy", Score: 1.0}))
	_, _, err := p.CloseSession(ctx)
	require.NoError(t, err)

	var outcome *Outcome
	timeout := time.After(2 * time.Second)
	for outcome == nil {
		select {
		case u := <-updates:
			if u.Type == UpdateWrite {
				outcome = u.Outcome
			}
		case <-timeout:
			t.Fatal("timed out waiting for write outcome")
		}
	}

	assert.NoError(t, outcome.Err)
	assert.Error(t, outcome.SyncErr)

	shutdown(t, p)
	st := p.Stats()
	assert.Equal(t, int64(1), st.Written)
	assert.Equal(t, int64(1), st.SyncFailures)
	assert.Equal(t, int64(1), st.Received)

	all, _ := store.List(ctx)
	assert.Len(t, all, 1, "local state is kept when the mirror fails")
}

func TestPipelineSubscriberSeesPointsAndClose(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline("cap", tracking.NewMemoryStore(), Options{})
	updates, unsubscribe := p.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, p.Submit(ctx, tracking.RawEvent{Emotion: "happy", Score: 1.0}))
	_, _, err := p.CloseSession(ctx)
	require.NoError(t, err)
	shutdown(t, p)

	var types []UpdateType
	for u := range updates {
		types = append(types, u.Type)
	}
	assert.Equal(t, []UpdateType{UpdateSessionOpened, UpdatePoint, UpdateSessionClosed, UpdateWrite}, types)
}
