package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropOldest(t *testing.T) {
	q := newQueue[int](2, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.push(ctx, i, BackpressureDropOldest))
	}
	assert.Equal(t, 1, q.droppedCount())

	a, _ := q.pop()
	b, _ := q.pop()
	assert.Equal(t, []int{2, 3}, []int{a, b})
}

func TestQueueBlockWaitsForSpace(t *testing.T) {
	q := newQueue[int](1, nil)
	require.NoError(t, q.push(context.Background(), 1, BackpressureBlock))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.push(ctx, 2, BackpressureBlock)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	done := make(chan error, 1)
	go func() { done <- q.push(context.Background(), 3, BackpressureBlock) }()

	v, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)

	v, _ = q.pop()
	assert.Equal(t, 3, v)
}

func TestQueueUncountedItemsBypassLimit(t *testing.T) {
	q := newQueue[int](1, func(v int) bool { return v > 0 })
	ctx := context.Background()

	require.NoError(t, q.push(ctx, 1, BackpressureDropOldest))
	require.NoError(t, q.push(ctx, -1, BackpressureDropOldest))
	require.NoError(t, q.push(ctx, 2, BackpressureDropOldest))

	var got []int
	q.close()
	for {
		v, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{-1, 2}, got)
}

func TestQueueClosedRejectsPush(t *testing.T) {
	q := newQueue[int](1, nil)
	q.close()
	assert.ErrorIs(t, q.push(context.Background(), 1, BackpressureBlock), ErrPipelineClosed)
}

func TestParseBackpressure(t *testing.T) {
	p, err := ParseBackpressure("DROP-OLDEST")
	require.NoError(t, err)
	assert.Equal(t, BackpressureDropOldest, p)

	p, err = ParseBackpressure("")
	require.NoError(t, err)
	assert.Equal(t, BackpressureBlock, p)

	_, err = ParseBackpressure("newest")
	assert.Error(t, err)
}
