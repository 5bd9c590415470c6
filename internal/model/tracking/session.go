package tracking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
)

// Session is one bounded capture interval and its derived statistics.
type Session struct {
	ID             string     `json:"id"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	Events         []Event    `json:"events"`
	TotalScore     float64    `json:"totalScore"`
	EmotionSummary Summary    `json:"emotionSummary"`
}

// NewSessionID builds an identifier of the form session_<unix-ms>_<suffix>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// IsOpen reports whether the session still accepts events.
func (s Session) IsOpen() bool {
	return s.EndTime == nil
}

// Finalize stamps the end time and recomputes the summary from the event list.
func (s *Session) Finalize(end time.Time) {
	end = end.UTC()
	s.EndTime = &end
	s.Recompute()
}

// Recompute derives the summary and total score from the current events.
func (s *Session) Recompute() {
	s.EmotionSummary, s.TotalScore = Summarize(s.Events)
}

// Duration returns end minus start, zero for open or inverted sessions.
func (s Session) Duration() time.Duration {
	if s.EndTime == nil || s.StartTime.IsZero() {
		return 0
	}
	d := s.EndTime.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Labels returns the emotion of each event in order.
func (s Session) Labels() []emotion.Label {
	out := make([]emotion.Label, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.Emotion
	}
	return out
}

// Scores returns the score of each event in order.
func (s Session) Scores() []float64 {
	out := make([]float64, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.Score
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (s Session) Clone() Session {
	out := s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.Events != nil {
		out.Events = append([]Event(nil), s.Events...)
	}
	return out
}
