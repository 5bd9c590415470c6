package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func session(id string, start time.Time, labels ...emotion.Label) tracking.Session {
	s := tracking.Session{ID: id, StartTime: start}
	for i, l := range labels {
		s.Events = append(s.Events, tracking.Event{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Emotion:   l,
			Score:     emotion.Polarity(l),
		})
	}
	s.Finalize(start.Add(90 * time.Second))
	return s
}

func TestRepositoryUpsertKeepsRowAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, session("a", start, emotion.Happy)))
	require.NoError(t, repo.Upsert(ctx, session("b", start.Add(time.Hour), emotion.Sad)))

	clock = clock.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, session("a", start, emotion.Angry, emotion.Angry)))

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].SessionID)
	assert.Equal(t, tracking.Summary{Negative: 2}, docs[0].EmotionSummary)
	assert.Equal(t, -2.0, docs[0].TotalScore)
	require.NotNil(t, docs[0].CreatedAt)
	require.NotNil(t, docs[0].UpdatedAt)
	assert.True(t, docs[0].UpdatedAt.After(*docs[0].CreatedAt))
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := session("a", start, emotion.Happy, emotion.Neutral, emotion.Sad)
	require.NoError(t, repo.Upsert(ctx, want))

	got, ok, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = repo.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, session("a", start)))
	require.NoError(t, repo.Upsert(ctx, session("b", start)))

	removed, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, repo.Clear(ctx))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepositoryCorruptDataHasNoEvents(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, session("a", start, emotion.Happy)))

	_, err := repo.db.ExecContext(ctx, `UPDATE sessions SET data = 'not json' WHERE session_id = ?`, "a")
	require.NoError(t, err)

	got, ok, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Events)
	assert.Equal(t, tracking.Summary{}, got.EmotionSummary)
	assert.Zero(t, got.TotalScore)

	doc, ok, err := repo.FindDocument(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tracking.Summary{}, doc.EmotionSummary)
}

func TestRepositoryIgnoresStaleSummaryColumns(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, session("a", start, emotion.Happy)))

	_, err := repo.db.ExecContext(ctx, `UPDATE sessions SET total_score = 5, positive = 5, negative = 3 WHERE session_id = ?`, "a")
	require.NoError(t, err)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, tracking.Summary{Positive: 1}, all[0].EmotionSummary)
	assert.Equal(t, 1.0, all[0].TotalScore)
}

func TestRepositoryPersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, session("a", start, emotion.Happy)))
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
}
