// Package stats computes read-side statistics over stored sessions.
package stats

import (
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// Frequency is the share of events carrying one emotion label.
type Frequency struct {
	Emotion emotion.Label `json:"emotion"`
	Count   int           `json:"count"`
	Ratio   float64       `json:"ratio"`
}

// Summary aggregates the whole stored collection.
type Summary struct {
	TotalSessions    int           `json:"totalSessions"`
	TotalEvents      int           `json:"totalEvents"`
	TotalDuration    time.Duration `json:"-"`
	TotalDurationSec float64       `json:"totalDuration"`
	AverageScore     float64       `json:"averageScore"`
	TotalPositive    int           `json:"totalPositive"`
	TotalNeutral     int           `json:"totalNeutral"`
	TotalNegative    int           `json:"totalNegative"`
	EmotionFrequency []Frequency   `json:"emotionFrequency"`
}

// Rollup computes collection-wide metrics from the sessions' events. Stored
// totals are not trusted. Sessions without events or without an end time
// still count as sessions but contribute nothing else.
func Rollup(sessions []tracking.Session) Summary {
	out := Summary{EmotionFrequency: []Frequency{}}
	if len(sessions) == 0 {
		return out
	}

	counts := make(map[emotion.Label]int)
	var scoreSum float64
	for _, s := range sessions {
		out.TotalSessions++
		out.TotalDuration += s.Duration()
		summary, total := tracking.Summarize(s.Events)
		scoreSum += total
		out.TotalPositive += summary.Positive
		out.TotalNeutral += summary.Neutral
		out.TotalNegative += summary.Negative

		for _, ev := range s.Events {
			label, ok := emotion.ParseLabel(string(ev.Emotion))
			if !ok {
				continue
			}
			counts[label]++
			out.TotalEvents++
		}
	}

	out.AverageScore = scoreSum / float64(out.TotalSessions)
	out.TotalDurationSec = out.TotalDuration.Seconds()

	if out.TotalEvents == 0 {
		return out
	}
	for _, label := range emotion.Labels() {
		n := counts[label]
		if n == 0 {
			continue
		}
		out.EmotionFrequency = append(out.EmotionFrequency, Frequency{
			Emotion: label,
			Count:   n,
			Ratio:   float64(n) / float64(out.TotalEvents),
		})
	}
	return out
}
