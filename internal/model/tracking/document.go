package tracking

import "time"

// Document is the shape exchanged with the REST backend.
type Document struct {
	SessionID      string     `json:"sessionId"`
	StartTime      *time.Time `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	Data           []Event    `json:"data"`
	TotalScore     float64    `json:"totalScore"`
	EmotionSummary Summary    `json:"emotionSummary"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// ToDocument converts a session into its REST representation.
func ToDocument(s Session) Document {
	start := s.StartTime
	doc := Document{
		SessionID:      s.ID,
		StartTime:      &start,
		Data:           s.Events,
		TotalScore:     s.TotalScore,
		EmotionSummary: s.EmotionSummary,
	}
	if s.EndTime != nil {
		end := *s.EndTime
		doc.EndTime = &end
	}
	if doc.Data == nil {
		doc.Data = []Event{}
	}
	return doc
}

// Submission is a session document received from a client or a remote
// backend. Its events are raw until ToSession normalizes them.
type Submission struct {
	SessionID string     `json:"sessionId"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Data      []RawEvent `json:"data"`
}

// Valid reports whether the required fields are present.
func (d Submission) Valid() bool {
	return d.SessionID != "" && d.StartTime != nil && !d.StartTime.IsZero() && d.EndTime != nil && !d.EndTime.IsZero()
}

// ToSession normalizes every event with n and recomputes the summary, so a
// submitted summary or total is never trusted.
func (d Submission) ToSession(n Normalizer) Session {
	s := Session{
		ID:     d.SessionID,
		Events: make([]Event, 0, len(d.Data)),
	}
	for _, raw := range d.Data {
		s.Events = append(s.Events, n.Normalize(raw))
	}
	if d.StartTime != nil {
		s.StartTime = d.StartTime.UTC()
	}
	if d.EndTime != nil {
		end := d.EndTime.UTC()
		s.EndTime = &end
	}
	s.Recompute()
	return s
}
