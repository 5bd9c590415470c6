package tracking

import "github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"

// Summary counts events per score bucket.
type Summary struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Total returns the number of events the summary covers.
func (s Summary) Total() int {
	return s.Positive + s.Neutral + s.Negative
}

// Summarize buckets every event and sums the scores.
func Summarize(events []Event) (Summary, float64) {
	var (
		summary Summary
		total   float64
	)
	for _, ev := range events {
		total += ev.Score
		switch ev.Bucket() {
		case emotion.BucketPositive:
			summary.Positive++
		case emotion.BucketNegative:
			summary.Negative++
		default:
			summary.Neutral++
		}
	}
	return summary, total
}
