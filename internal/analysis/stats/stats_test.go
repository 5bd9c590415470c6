package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

func session(id string, start time.Time, length time.Duration, events ...tracking.Event) tracking.Session {
	s := tracking.Session{ID: id, StartTime: start, Events: events}
	s.Finalize(start.Add(length))
	return s
}

func ev(label emotion.Label, score float64) tracking.Event {
	return tracking.Event{Timestamp: time.Now(), Emotion: label, Score: score}
}

func TestRollupEmptyCollection(t *testing.T) {
	got := Rollup(nil)
	assert.Zero(t, got.TotalSessions)
	assert.Zero(t, got.TotalEvents)
	assert.Zero(t, got.AverageScore)
	assert.Empty(t, got.EmotionFrequency)
}

func TestRollupAggregatesSessions(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sessions := []tracking.Session{
		session("a", start, time.Minute, ev(emotion.Happy, 1), ev(emotion.Happy, 1), ev(emotion.Sad, -1)),
		session("b", start, 30*time.Second, ev(emotion.Neutral, 0)),
		session("empty", start, 0),
	}

	got := Rollup(sessions)
	assert.Equal(t, 3, got.TotalSessions)
	assert.Equal(t, 4, got.TotalEvents)
	assert.Equal(t, 90*time.Second, got.TotalDuration)
	assert.InDelta(t, 1.0/3.0, got.AverageScore, 1e-9)
	assert.Equal(t, 2, got.TotalPositive)
	assert.Equal(t, 1, got.TotalNegative)
	assert.Equal(t, 1, got.TotalNeutral)

	require.Len(t, got.EmotionFrequency, 3)
	assert.Equal(t, emotion.Happy, got.EmotionFrequency[0].Emotion)
	assert.InDelta(t, 0.5, got.EmotionFrequency[0].Ratio, 1e-9)
}

func TestRollupSkipsMalformedEvents(t *testing.T) {
	open := tracking.Session{ID: "open", StartTime: time.Now(), Events: []tracking.Event{{Emotion: "bogus"}}}
	got := Rollup([]tracking.Session{open})
	assert.Equal(t, 1, got.TotalSessions)
	assert.Zero(t, got.TotalEvents)
	assert.Zero(t, got.TotalDuration)
}

func TestRollupIgnoresStoredTotals(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	stale := session("stale", start, time.Minute, ev(emotion.Sad, -1))
	stale.TotalScore = 5
	stale.EmotionSummary = tracking.Summary{Positive: 5}

	missing := tracking.Session{ID: "missing", StartTime: start, TotalScore: 5}
	missing.EmotionSummary = tracking.Summary{Positive: 5}

	got := Rollup([]tracking.Session{stale, missing})
	assert.Equal(t, 2, got.TotalSessions)
	assert.Equal(t, 1, got.TotalEvents)
	assert.Zero(t, got.TotalPositive)
	assert.Equal(t, 1, got.TotalNegative)
	assert.InDelta(t, -0.5, got.AverageScore, 1e-9)

	d := Detail(stale)
	assert.Equal(t, -1.0, d.TotalScore)
	assert.Equal(t, tracking.Summary{Negative: 1}, d.EmotionSummary)
}

func TestDetail(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := session("a", start, 95*time.Second, ev(emotion.Happy, 1), ev(emotion.Sad, -1), ev(emotion.Sad, 0))

	d := Detail(s)
	assert.Equal(t, emotion.Sad, d.DominantEmotion)
	assert.Equal(t, "1m 35s", d.DurationText)
	assert.InDelta(t, 0, d.AverageConfidence, 1e-9)
	assert.Len(t, d.Timeline, 3)
	assert.Equal(t, emotion.BucketNegative, d.Timeline[1].Bucket)
}

func TestDetailEmptySession(t *testing.T) {
	d := Detail(session("a", time.Now(), 0))
	assert.Equal(t, emotion.Neutral, d.DominantEmotion)
	assert.Zero(t, d.AverageConfidence)
	assert.Equal(t, "0m 0s", d.DurationText)
}
