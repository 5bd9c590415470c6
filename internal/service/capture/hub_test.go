package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

func TestHubLifecycle(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(tracking.NewMemoryStore(), Config{MaxActive: 1})

	p, err := hub.Start()
	require.NoError(t, err)

	_, err = hub.Start()
	assert.ErrorIs(t, err, ErrTooManyCaptures)

	got, err := hub.Get(p.ID())
	require.NoError(t, err)
	assert.Same(t, p, got)

	require.NoError(t, hub.Stop(ctx, p.ID()))
	assert.Equal(t, 0, hub.Active())

	_, err = hub.Get(p.ID())
	assert.ErrorIs(t, err, ErrCaptureNotFound)
	assert.ErrorIs(t, hub.Stop(ctx, p.ID()), ErrCaptureNotFound)
}

func TestHubShutdownStopsAll(t *testing.T) {
	hub := NewHub(tracking.NewMemoryStore(), Config{})
	a, _ := hub.Start()
	b, _ := hub.Start()

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Active())

	<-a.Done()
	<-b.Done()
}
