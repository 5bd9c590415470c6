package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
)

// RawEvent is a detector payload before validation. Fields are left untyped so
// malformed values can be defaulted instead of failing the whole payload.
type RawEvent struct {
	Emotion   any `json:"emotion"`
	Score     any `json:"score"`
	Timestamp any `json:"timestamp,omitempty"`
}

// ValidationError reports a payload that is not an event at all.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid event payload: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DecodeEvents accepts a single JSON object or an array of objects.
func DecodeEvents(data []byte) ([]RawEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ValidationError{Reason: "empty body"}
	}

	switch trimmed[0] {
	case '{':
		var ev RawEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, &ValidationError{Reason: "decode object", Err: err}
		}
		return []RawEvent{ev}, nil
	case '[':
		var evs []RawEvent
		if err := json.Unmarshal(trimmed, &evs); err != nil {
			return nil, &ValidationError{Reason: "decode array", Err: err}
		}
		return evs, nil
	default:
		return nil, &ValidationError{Reason: "expected object or array"}
	}
}

// Normalizer converts detector payloads into canonical events.
type Normalizer struct {
	Convention emotion.Convention
	Now        func() time.Time
}

// NewNormalizer returns a Normalizer for the given score convention.
func NewNormalizer(convention emotion.Convention) Normalizer {
	if convention == "" {
		convention = emotion.ConventionPolarity
	}
	return Normalizer{Convention: convention, Now: time.Now}
}

// Normalize applies the defaulting rules: missing timestamp becomes now,
// unknown emotion becomes neutral, non-numeric score becomes 0.
func (n Normalizer) Normalize(raw RawEvent) Event {
	now := n.now()

	label := emotion.Neutral
	if s, ok := raw.Emotion.(string); ok {
		if parsed, ok := emotion.ParseLabel(s); ok {
			label = parsed
		}
	}

	var score float64
	if v, ok := numeric(raw.Score); ok {
		score = n.convention().ToCanonical(v)
	}

	ts := now
	if parsed, ok := parseTimestamp(raw.Timestamp); ok {
		ts = parsed
	}

	return Event{Timestamp: ts.UTC(), Emotion: label, Score: score}
}

func (n Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

func (n Normalizer) convention() emotion.Convention {
	if n.Convention == "" {
		return emotion.ConventionPolarity
	}
	return n.Convention
}

func numeric(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// maxUnixMilli is 9999-12-31T23:59:59.999Z. Larger values do not fit the
// int64 conversion reliably and are treated as missing.
const maxUnixMilli = 253402300799999

func parseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		raw := strings.TrimSpace(val)
		if raw == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, !t.IsZero()
			}
		}
		return time.Time{}, false
	case time.Time:
		return val, !val.IsZero()
	default:
		// Numbers are Unix milliseconds, as produced by Date.now().
		if ms, ok := numeric(val); ok && ms > 0 && ms <= maxUnixMilli {
			return time.UnixMilli(int64(ms)), true
		}
		return time.Time{}, false
	}
}
