package capture

import (
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// Aggregator owns the single open session of one capture context.
// It performs no IO and is not safe for concurrent use; Pipeline serializes access.
type Aggregator struct {
	now  func() time.Time
	open *tracking.Session
}

// NewAggregator returns an Aggregator using now as its clock. A nil clock uses time.Now.
func NewAggregator(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// Start opens a session if none is open and returns a copy of the open session.
func (a *Aggregator) Start() tracking.Session {
	a.ensureOpen()
	return a.open.Clone()
}

// Record appends a normalized event, opening a session lazily. It returns the
// open session's id and whether this call opened it.
func (a *Aggregator) Record(ev tracking.Event) (string, bool) {
	opened := a.ensureOpen()
	a.open.Events = append(a.open.Events, ev)
	return a.open.ID, opened
}

// Close finalizes the open session and clears the slot. The boolean is false
// when nothing was open.
func (a *Aggregator) Close() (tracking.Session, bool) {
	if a.open == nil {
		return tracking.Session{}, false
	}
	s := *a.open
	a.open = nil
	s.Finalize(a.now())
	return s, true
}

// Abandon drops the open session without finalizing it.
func (a *Aggregator) Abandon() (tracking.Session, bool) {
	if a.open == nil {
		return tracking.Session{}, false
	}
	s := *a.open
	a.open = nil
	return s, true
}

// OpenID returns the id of the open session without copying it.
func (a *Aggregator) OpenID() (string, bool) {
	if a.open == nil {
		return "", false
	}
	return a.open.ID, true
}

// Current returns a copy of the open session.
func (a *Aggregator) Current() (tracking.Session, bool) {
	if a.open == nil {
		return tracking.Session{}, false
	}
	return a.open.Clone(), true
}

func (a *Aggregator) ensureOpen() bool {
	if a.open != nil {
		return false
	}
	now := a.now().UTC()
	a.open = &tracking.Session{
		ID:        tracking.NewSessionID(now),
		StartTime: now,
		Events:    make([]tracking.Event, 0, 64),
	}
	return true
}
