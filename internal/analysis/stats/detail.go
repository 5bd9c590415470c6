package stats

import (
	"fmt"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// Point is one chart sample.
type Point struct {
	Timestamp time.Time      `json:"timestamp"`
	Emotion   emotion.Label  `json:"emotion"`
	Score     float64        `json:"score"`
	Bucket    emotion.Bucket `json:"bucket"`
}

// PointOf converts an event into a chart sample.
func PointOf(ev tracking.Event) Point {
	return Point{Timestamp: ev.Timestamp, Emotion: ev.Emotion, Score: ev.Score, Bucket: ev.Bucket()}
}

// SessionDetail backs the per-session detail view.
type SessionDetail struct {
	SessionID         string           `json:"sessionId"`
	StartTime         time.Time        `json:"startTime"`
	EndTime           *time.Time       `json:"endTime"`
	DurationSec       float64          `json:"duration"`
	DurationText      string           `json:"durationText"`
	DominantEmotion   emotion.Label    `json:"dominantEmotion"`
	AverageConfidence float64          `json:"averageConfidence"`
	TotalScore        float64          `json:"totalScore"`
	EmotionSummary    tracking.Summary `json:"emotionSummary"`
	Distribution      []emotion.Count  `json:"distribution"`
	Timeline          []Point          `json:"timeline"`
}

// Detail derives the detail view of one session. An empty session reports a
// neutral dominant emotion and zero average.
func Detail(s tracking.Session) SessionDetail {
	dominant, ok := emotion.Dominant(s.Labels())
	if !ok {
		dominant = emotion.Neutral
	}

	timeline := make([]Point, len(s.Events))
	for i, ev := range s.Events {
		timeline[i] = PointOf(ev)
	}

	summary, total := tracking.Summarize(s.Events)
	d := s.Duration()
	return SessionDetail{
		SessionID:         s.ID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		DurationSec:       d.Seconds(),
		DurationText:      FormatDuration(d),
		DominantEmotion:   dominant,
		AverageConfidence: emotion.Mean(s.Scores()),
		TotalScore:        total,
		EmotionSummary:    summary,
		Distribution:      emotion.Distribution(s.Labels()),
		Timeline:          timeline,
	}
}

// FormatDuration renders a duration as "Xm Ys".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
