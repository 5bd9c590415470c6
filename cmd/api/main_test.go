package main

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestRunReturnsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	t.Setenv("PORT", busy.Addr().String())
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SYNC_URL", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx); err == nil {
		t.Fatal("expected an error when the address is already in use")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:0")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SYNC_URL", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
