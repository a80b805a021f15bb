package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notification-engine/internal/config"
	"notification-engine/internal/server"
)

func main() {
	cfg := config.Load()

	srv := server.NewServer(cfg)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[main] notification engine listening on %s", cfg.HTTPAddr)
		errCh <- srv.HTTP.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Println("[main] shutting down gracefully...")
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[main] shutdown error: %v", err)
		}
	case err := <-errCh:
		log.Fatalf("[main] server failed: %v", err)
	}
}
