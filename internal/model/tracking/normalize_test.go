package tracking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
)

func TestNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := Normalizer{Convention: emotion.ConventionPolarity, Now: func() time.Time { return now }}

	ev := n.Normalize(RawEvent{Emotion: "bored", Score: "lots"})
	assert.Equal(t, emotion.Neutral, ev.Emotion)
	assert.Zero(t, ev.Score)
	assert.Equal(t, now, ev.Timestamp)

	ev = n.Normalize(RawEvent{})
	assert.Equal(t, emotion.Neutral, ev.Emotion)
	assert.Zero(t, ev.Score)
}

func TestNormalizeParsesFields(t *testing.T) {
	n := NewNormalizer(emotion.ConventionPolarity)

	ev := n.Normalize(RawEvent{Emotion: "Happy", Score: 1.0, Timestamp: "2026-03-01T09:00:00.500Z"})
	assert.Equal(t, emotion.Happy, ev.Emotion)
	assert.Equal(t, 1.0, ev.Score)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 500_000_000, time.UTC), ev.Timestamp)

	ev = n.Normalize(RawEvent{Emotion: "sad", Score: -7.0, Timestamp: float64(1_772_355_600_000)})
	assert.Equal(t, -1.0, ev.Score, "polarity scores are clamped")
	assert.Equal(t, int64(1_772_355_600_000), ev.Timestamp.UnixMilli())
}

func TestNormalizeConfidenceConvention(t *testing.T) {
	n := NewNormalizer(emotion.ConventionConfidence)
	ev := n.Normalize(RawEvent{Emotion: "happy", Score: 0.9})
	assert.InDelta(t, 0.8, ev.Score, 1e-9)
	assert.Equal(t, emotion.BucketPositive, ev.Bucket())
}

func TestDecodeEvents(t *testing.T) {
	evs, err := DecodeEvents([]byte(`{"emotion":"happy","score":1}`))
	require.NoError(t, err)
	assert.Len(t, evs, 1)

	evs, err = DecodeEvents([]byte(` [{"emotion":"happy"},{"score":"x"}] `))
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	_, err = DecodeEvents([]byte(`"nope"`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = DecodeEvents([]byte(`{"emotion":`))
	require.True(t, errors.As(err, &verr))
}

func TestNormalizeOutOfRangeTimestampFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := Normalizer{Now: func() time.Time { return now }}

	for _, ts := range []any{1e300, float64(maxUnixMilli) + 1, -5.0} {
		ev := n.Normalize(RawEvent{Emotion: "happy", Score: 1.0, Timestamp: ts})
		assert.Equal(t, now, ev.Timestamp, "timestamp %v", ts)
	}

	ev := n.Normalize(RawEvent{Timestamp: float64(maxUnixMilli)})
	assert.Equal(t, 9999, ev.Timestamp.Year())
}
