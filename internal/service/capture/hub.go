package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

// Config controls how the Hub builds pipelines.
type Config struct {
	MaxActive int
	Pipeline  Options
}

// Hub tracks active captures, one Pipeline per capture context.
type Hub struct {
	store tracking.Store
	cfg   Config

	mu       sync.RWMutex
	captures map[string]*Pipeline
}

// NewHub creates a Hub writing closed sessions to store.
func NewHub(store tracking.Store, cfg Config) *Hub {
	return &Hub{
		store:    store,
		cfg:      cfg,
		captures: make(map[string]*Pipeline),
	}
}

// Normalizer returns the event normalizer every capture of this hub uses.
func (h *Hub) Normalizer() tracking.Normalizer {
	return h.cfg.Pipeline.Normalizer
}

// Start registers a new capture.
func (h *Hub) Start() (*Pipeline, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.MaxActive > 0 && len(h.captures) >= h.cfg.MaxActive {
		return nil, ErrTooManyCaptures
	}

	id := uuid.NewString()
	p := NewPipeline(id, h.store, h.cfg.Pipeline)
	h.captures[id] = p
	log.Printf("[capture] started capture %s (active=%d)", id, len(h.captures))
	return p, nil
}

// Get returns an active capture.
func (h *Hub) Get(id string) (*Pipeline, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.captures[id]
	if !ok {
		return nil, ErrCaptureNotFound
	}
	return p, nil
}

// Stop unregisters a capture and drains it.
func (h *Hub) Stop(ctx context.Context, id string) error {
	h.mu.Lock()
	p, ok := h.captures[id]
	if ok {
		delete(h.captures, id)
	}
	h.mu.Unlock()

	if !ok {
		return ErrCaptureNotFound
	}
	if err := p.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop capture %s: %w", id, err)
	}
	log.Printf("[capture] stopped capture %s", id)
	return nil
}

// Active returns the number of registered captures.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.captures)
}

// Shutdown stops every capture.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	captures := h.captures
	h.captures = make(map[string]*Pipeline)
	h.mu.Unlock()

	var errs []error
	for id, p := range captures {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("capture %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
