package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func event(label emotion.Label, score float64) tracking.Event {
	return tracking.Event{Timestamp: time.Now().UTC(), Emotion: label, Score: score}
}

func TestAggregatorScenarioBalancedSession(t *testing.T) {
	clock := newClock()
	agg := NewAggregator(clock.Now)

	agg.Record(event(emotion.Happy, 1))
	agg.Record(event(emotion.Sad, -1))
	agg.Record(event(emotion.Neutral, 0))
	clock.Advance(2 * time.Minute)

	s, ok := agg.Close()
	require.True(t, ok)
	assert.Equal(t, 0.0, s.TotalScore)
	assert.Equal(t, tracking.Summary{Positive: 1, Neutral: 1, Negative: 1}, s.EmotionSummary)
	require.NotNil(t, s.EndTime)
	assert.Equal(t, 2*time.Minute, s.Duration())
	assert.False(t, s.IsOpen())
}

func TestAggregatorCloseWithoutSessionIsNoop(t *testing.T) {
	agg := NewAggregator(nil)
	_, ok := agg.Close()
	assert.False(t, ok)
}

func TestAggregatorCloseEmptySession(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Start()

	s, ok := agg.Close()
	require.True(t, ok)
	assert.Zero(t, s.TotalScore)
	assert.Equal(t, tracking.Summary{}, s.EmotionSummary)
}

func TestAggregatorSummaryCoversEveryEvent(t *testing.T) {
	agg := NewAggregator(nil)
	scores := []float64{1, -1, 0, 0.3, -0.3, 0.2, -0.2, 0.99}
	for _, score := range scores {
		agg.Record(event(emotion.Neutral, score))
	}

	s, _ := agg.Close()
	assert.Equal(t, len(s.Events), s.EmotionSummary.Positive+s.EmotionSummary.Neutral+s.EmotionSummary.Negative)
}

func TestAggregatorOpensFreshSessionAfterClose(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(event(emotion.Happy, 1))
	first, _ := agg.Close()

	_, open := agg.Current()
	assert.False(t, open, "no session should be open until the next event")

	agg.Record(event(emotion.Sad, -1))
	second, _ := agg.Close()

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, first.Events, 1)
	assert.Len(t, second.Events, 1)
}

func TestAggregatorStartIsIdempotent(t *testing.T) {
	agg := NewAggregator(nil)
	a := agg.Start()
	b := agg.Start()
	assert.Equal(t, a.ID, b.ID)
}

func TestAggregatorAbandonDropsSession(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(event(emotion.Happy, 1))

	s, ok := agg.Abandon()
	require.True(t, ok)
	assert.Nil(t, s.EndTime)

	_, ok = agg.Close()
	assert.False(t, ok)
}

func TestAggregatorCurrentIsACopy(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(event(emotion.Happy, 1))

	snap, _ := agg.Current()
	snap.Events[0].Score = -1

	s, _ := agg.Close()
	assert.Equal(t, 1.0, s.Events[0].Score)
}

func TestAggregatorRecordReportsOpening(t *testing.T) {
	agg := NewAggregator(nil)
	_, ok := agg.OpenID()
	assert.False(t, ok)

	id, opened := agg.Record(event(emotion.Happy, 1))
	assert.True(t, opened)
	again, opened := agg.Record(event(emotion.Sad, -1))
	assert.False(t, opened)
	assert.Equal(t, id, again)

	open, ok := agg.OpenID()
	require.True(t, ok)
	assert.Equal(t, id, open)
}

func TestAggregatorRecordDoesNotCopyEvents(t *testing.T) {
	agg := NewAggregator(nil)
	ev := event(emotion.Happy, 1)
	for i := 0; i < 1000; i++ {
		agg.Record(ev)
	}

	allocs := testing.AllocsPerRun(1000, func() {
		agg.Record(ev)
		agg.OpenID()
	})
	assert.Less(t, allocs, 1.0, "recording must not clone the open session")
}
