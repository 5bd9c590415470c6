package tracking

import (
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
)

// Event is one normalized classification delivered by the detector.
// Score is always in the canonical polarity convention.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Emotion   emotion.Label `json:"emotion"`
	Score     float64       `json:"score"`
}

// Bucket classifies the event by its score.
func (e Event) Bucket() emotion.Bucket {
	return emotion.Classify(e.Score)
}
