package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/emotrack/backend/internal/config"
	"github.com/zhouzirui/emotrack/backend/internal/handler"
	"github.com/zhouzirui/emotrack/backend/internal/service/capture"
	"github.com/zhouzirui/emotrack/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	if err := run(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

// run owns every resource so deferred cleanup happens before main exits,
// including when the listener fails.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, closeStore, err := storage.Open(cfg.Storage, cfg.Sync)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("warning: failed to close session store: %v", err)
		}
	}()

	hub := capture.NewHub(store, cfg.Capture.Hub())
	log.Printf("capture hub ready (queue=%d backpressure=%s convention=%s close_on_disconnect=%t)",
		cfg.Capture.QueueSize, cfg.Capture.Backpressure, cfg.Capture.Convention, cfg.Capture.CloseOnShutdown)

	router := handler.NewRouter(store, hub, cfg.Server.ListLimit)

	serveErr := startServer(ctx, cfg.Server, router)

	// 服务停止后排空所有采集管道，未结束的会话按配置结束或丢弃。
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: capture shutdown incomplete: %v", err)
	}
	return serveErr
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("emotrack backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
