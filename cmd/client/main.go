package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
	"github.com/zhouzirui/z-tavern/relay/internal/config"
	"github.com/zhouzirui/z-tavern/relay/internal/console"
	"github.com/zhouzirui/z-tavern/relay/internal/handler"
	"github.com/zhouzirui/z-tavern/relay/internal/service/chat"
	"github.com/zhouzirui/z-tavern/relay/internal/service/relay"
	"github.com/zhouzirui/z-tavern/relay/internal/service/status"
	"github.com/zhouzirui/z-tavern/relay/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	secret, err := auth.LoadSecret(cfg.Auth.KeyProvider())
	if err != nil {
		log.Fatalf("failed to load shared secret: %v", err)
	}
	defer secret.Close()
	log.Printf("shared secret loaded (prefix %s...)", secret.Prefix(10))

	transcript, err := store.Open(cfg.Transcript.Backend, cfg.Transcript.Path)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}
	defer transcript.Close()

	// A fresh session per run unless resuming was asked for
	var session *chat.Service
	if cfg.Transcript.Resume {
		session, err = chat.ResumeService(ctx, cfg.Relay.SystemPrompt, transcript)
	} else {
		session, err = chat.NewService(ctx, cfg.Relay.SystemPrompt, transcript)
	}
	if err != nil {
		log.Fatalf("failed to initialize session: %v", err)
	}
	log.Printf("session ready: backend=%s path=%s turns=%d", cfg.Transcript.Backend, cfg.Transcript.Path, len(session.Snapshot().History))

	tracker := status.NewTracker(nil)
	client := relay.NewClient(relay.ClientConfig{
		RemoteURL: cfg.Relay.RemoteURL,
		Model:     cfg.Relay.Model,
		Timeout:   cfg.Relay.Timeout,
	}, session, tracker, auth.NewSigner(secret.Bytes()))
	log.Printf("relaying to %s with model %s", cfg.Relay.RemoteURL, cfg.Relay.Model)

	router := handler.NewClientRouter(client, tracker, session, cfg.CORS)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("relay client listening on %s", cfg.HTTP.Addr)
		serverErr <- runServer(ctx, srv)
	}()

	if cfg.Console {
		if err := console.New(client, os.Stdin, os.Stdout).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("console stopped: %v", err)
		}
		// Leaving the console ends the process.
		stop()
	}

	if err := <-serverErr; err != nil {
		log.Fatalf("server error: %v", err)
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
