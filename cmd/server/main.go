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

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
	"github.com/zhouzirui/z-tavern/relay/internal/config"
	"github.com/zhouzirui/z-tavern/relay/internal/handler"
	"github.com/zhouzirui/z-tavern/relay/internal/service/inference"
	"github.com/zhouzirui/z-tavern/relay/internal/service/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	secret, err := auth.LoadSecret(cfg.Auth.KeyProvider())
	if err != nil {
		log.Fatalf("failed to load shared secret: %v", err)
	}
	defer secret.Close()
	// Operators compare this prefix with the client's to confirm both ends share a key.
	fmt.Printf("Shared secret prefix: %s...\n", secret.Prefix(10))

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize inference backend: %v", err)
	}

	verifier := auth.NewVerifier(secret.Bytes(), cfg.Auth.Window)
	router := handler.NewServerRouter(relay.NewServer(verifier, backend))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// generation can take minutes on a cold model
		WriteTimeout: cfg.Inference.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("relay server listening on %s (window %s)", cfg.HTTP.Addr, verifier.Window())
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newBackend(ctx context.Context, cfg *config.ServerConfig) (inference.Backend, error) {
	switch cfg.Inference.Backend {
	case config.InferenceArk:
		b, err := inference.NewArkBackend(ctx, cfg.AI)
		if err != nil {
			return nil, err
		}
		log.Printf("inference via Ark model %s", cfg.AI.Model)
		return b, nil
	default:
		log.Printf("inference via Ollama at %s", cfg.Inference.URL)
		return inference.NewOllamaBackend(cfg.Inference.URL, cfg.Inference.Timeout), nil
	}
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
