package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/stats"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

var (
	ErrPipelineClosed  = errors.New("capture pipeline closed")
	ErrCaptureNotFound = errors.New("capture not found")
	ErrTooManyCaptures = errors.New("too many active captures")
)

// Options configures a Pipeline.
type Options struct {
	QueueSize       int
	Backpressure    Backpressure
	CloseOnShutdown bool
	WriteTimeout    time.Duration
	Normalizer      tracking.Normalizer
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Backpressure == "" {
		o.Backpressure = BackpressureBlock
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Normalizer.Now == nil {
		o.Normalizer.Now = o.Now
	}
	return o
}

// Outcome reports how the write of a closed session landed.
type Outcome struct {
	SessionID string
	Err       error
	SyncErr   error
}

// UpdateType names a pipeline notification.
type UpdateType string

const (
	UpdatePoint         UpdateType = "point"
	UpdateSessionOpened UpdateType = "session_opened"
	UpdateSessionClosed UpdateType = "session_closed"
	UpdateWrite         UpdateType = "write"
)

// Update is delivered to subscribers in processing order.
type Update struct {
	Type      UpdateType        `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Point     *stats.Point      `json:"point,omitempty"`
	Session   *tracking.Session `json:"session,omitempty"`
	Outcome   *Outcome          `json:"-"`
}

// PipelineStats are counters for one capture.
type PipelineStats struct {
	Received      int64 `json:"received"`
	Dropped       int64 `json:"dropped"`
	Closed        int64 `json:"closed"`
	Written       int64 `json:"written"`
	WriteFailures int64 `json:"writeFailures"`
	SyncFailures  int64 `json:"syncFailures"`
}

type controlKind int

const (
	controlStart controlKind = iota
	controlClose
	controlAbandon
	controlCurrent
)

type controlResult struct {
	session tracking.Session
	ok      bool
}

type control struct {
	kind  controlKind
	reply chan controlResult
}

type item struct {
	event *tracking.Event
	ctrl  *control
}

// Pipeline feeds detector events to one Aggregator through a bounded FIFO
// queue processed by a single worker, and writes closed sessions to the store
// from a separate goroutine so closing never waits on persistence.
type Pipeline struct {
	id    string
	store tracking.Store
	opts  Options

	agg    *Aggregator
	in     *queue[item]
	writes *queue[tracking.Session]

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int

	received      atomic.Int64
	closed        atomic.Int64
	written       atomic.Int64
	writeFailures atomic.Int64
	syncFailures  atomic.Int64

	shutdownOnce sync.Once
	workerDone   chan struct{}
	done         chan struct{}
}

// NewPipeline starts a pipeline writing closed sessions to store.
func NewPipeline(id string, store tracking.Store, opts Options) *Pipeline {
	opts = opts.withDefaults()
	p := &Pipeline{
		id:         id,
		store:      store,
		opts:       opts,
		agg:        NewAggregator(opts.Now),
		in:         newQueue[item](opts.QueueSize, func(it item) bool { return it.event != nil }),
		writes:     newQueue[tracking.Session](0, nil),
		subs:       make(map[int]chan Update),
		workerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	go p.work()
	go p.writeLoop()
	return p
}

// ID returns the capture identifier.
func (p *Pipeline) ID() string {
	return p.id
}

// Submit normalizes a detector payload and queues it.
func (p *Pipeline) Submit(ctx context.Context, raw tracking.RawEvent) error {
	return p.Record(ctx, p.opts.Normalizer.Normalize(raw))
}

// Record queues an already normalized event according to the backpressure policy.
func (p *Pipeline) Record(ctx context.Context, ev tracking.Event) error {
	if err := p.in.push(ctx, item{event: &ev}, p.opts.Backpressure); err != nil {
		return err
	}
	p.received.Add(1)
	return nil
}

// StartSession opens a session if none is open.
func (p *Pipeline) StartSession(ctx context.Context) (tracking.Session, error) {
	s, _, err := p.control(ctx, controlStart)
	return s, err
}

// CloseSession finalizes the open session after every event queued before
// the call. It returns false when no session was open. The store write
// happens asynchronously; its result is published as an UpdateWrite.
func (p *Pipeline) CloseSession(ctx context.Context) (tracking.Session, bool, error) {
	return p.control(ctx, controlClose)
}

// Abandon discards the open session without persisting it.
func (p *Pipeline) Abandon(ctx context.Context) (tracking.Session, bool, error) {
	return p.control(ctx, controlAbandon)
}

// Current returns a snapshot of the open session once queued events are applied.
func (p *Pipeline) Current(ctx context.Context) (tracking.Session, bool, error) {
	return p.control(ctx, controlCurrent)
}

// Subscribe registers a listener. Slow listeners miss updates rather than
// stalling the worker. The returned func unsubscribes.
func (p *Pipeline) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Update, buffer)

	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	if p.subs == nil {
		close(ch)
	} else {
		p.subs[id] = ch
	}
	p.subMu.Unlock()

	return ch, func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
}

// Stats returns the current counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Received:      p.received.Load(),
		Dropped:       int64(p.in.droppedCount()),
		Closed:        p.closed.Load(),
		Written:       p.written.Load(),
		WriteFailures: p.writeFailures.Load(),
		SyncFailures:  p.syncFailures.Load(),
	}
}

// Done is closed after Shutdown finished draining.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Shutdown stops accepting events, drains the queue and pending writes. The
// open session is closed and written when CloseOnShutdown is set, otherwise
// it is abandoned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(p.in.close)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) control(ctx context.Context, kind controlKind) (tracking.Session, bool, error) {
	c := &control{kind: kind, reply: make(chan controlResult, 1)}
	if err := p.in.push(ctx, item{ctrl: c}, p.opts.Backpressure); err != nil {
		return tracking.Session{}, false, err
	}
	select {
	case res := <-c.reply:
		return res.session, res.ok, nil
	case <-p.workerDone:
		// The worker may have answered right before exiting.
		select {
		case res := <-c.reply:
			return res.session, res.ok, nil
		default:
			return tracking.Session{}, false, ErrPipelineClosed
		}
	case <-ctx.Done():
		return tracking.Session{}, false, ctx.Err()
	}
}

func (p *Pipeline) work() {
	defer close(p.workerDone)

	for {
		it, ok := p.in.pop()
		if !ok {
			break
		}
		if it.event != nil {
			p.record(*it.event)
			continue
		}
		p.handleControl(it.ctrl)
	}

	if p.opts.CloseOnShutdown {
		if s, ok := p.agg.Close(); ok {
			log.Printf("[capture] %s closing open session %s on shutdown", p.id, s.ID)
			p.finish(s)
		}
	} else if s, ok := p.agg.Abandon(); ok {
		log.Printf("[capture] %s abandoned open session %s with %d events", p.id, s.ID, len(s.Events))
	}
	p.writes.close()
}

func (p *Pipeline) record(ev tracking.Event) {
	id, opened := p.agg.Record(ev)
	if opened {
		p.publish(Update{Type: UpdateSessionOpened, SessionID: id})
	}
	point := stats.PointOf(ev)
	p.publish(Update{Type: UpdatePoint, SessionID: id, Point: &point})
}

func (p *Pipeline) handleControl(c *control) {
	var res controlResult
	switch c.kind {
	case controlStart:
		_, wasOpen := p.agg.OpenID()
		res.session, res.ok = p.agg.Start(), true
		if !wasOpen {
			p.publish(Update{Type: UpdateSessionOpened, SessionID: res.session.ID})
		}
	case controlClose:
		res.session, res.ok = p.agg.Close()
		if res.ok {
			p.finish(res.session)
			res.session = res.session.Clone()
		}
	case controlAbandon:
		res.session, res.ok = p.agg.Abandon()
	case controlCurrent:
		res.session, res.ok = p.agg.Current()
	}
	c.reply <- res
}

func (p *Pipeline) finish(s tracking.Session) {
	p.closed.Add(1)
	snapshot := s.Clone()
	p.publish(Update{Type: UpdateSessionClosed, SessionID: s.ID, Session: &snapshot})
	// The writes queue is unbounded, so this never blocks the worker.
	if err := p.writes.push(context.Background(), s, BackpressureBlock); err != nil {
		log.Printf("[capture] %s dropped write for session %s: %v", p.id, s.ID, err)
	}
}

func (p *Pipeline) writeLoop() {
	defer func() {
		p.subMu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.subs = nil
		p.subMu.Unlock()
		close(p.done)
	}()

	for {
		s, ok := p.writes.pop()
		if !ok {
			return
		}
		outcome := p.persist(s)
		p.publish(Update{Type: UpdateWrite, SessionID: s.ID, Outcome: &outcome})
	}
}

func (p *Pipeline) persist(s tracking.Session) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.WriteTimeout)
	defer cancel()

	var res tracking.WriteResult
	if saver, ok := p.store.(tracking.Saver); ok {
		res = saver.Save(ctx, s)
	} else {
		res.Err = p.store.Upsert(ctx, s)
	}

	outcome := Outcome{SessionID: s.ID, Err: res.Err, SyncErr: res.SyncErr}
	switch {
	case res.Err != nil:
		p.writeFailures.Add(1)
		log.Printf("[capture] %s failed to store session %s: %v", p.id, s.ID, res.Err)
	default:
		p.written.Add(1)
	}
	if res.SyncErr != nil {
		p.syncFailures.Add(1)
	}
	return outcome
}

func (p *Pipeline) publish(u Update) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
