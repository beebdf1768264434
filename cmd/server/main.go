// Command server runs the real-time chat server.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/engine"
	"github.com/roomcast/roomcast/internal/gateway/sqlite"
	"github.com/roomcast/roomcast/internal/gateway/token"
	"github.com/roomcast/roomcast/internal/server"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.StoragePath)
	if err != nil {
		log.Error("open storage", "path", cfg.StoragePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	resolver := token.NewResolver([]byte(cfg.TokenSecret), nil)

	eng := engine.New(log, resolver, store, store, engine.Options{
		TypingTimeout:      cfg.TypingTimeout,
		ReceiptMinInterval: cfg.ReceiptMinInterval,
		OutgoingBuffer:     cfg.OutgoingBuffer,
		AnnounceRejoin:     cfg.AnnounceRejoin,
	})

	srv := server.New(cfg.ListenAddr, eng, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		srv.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}
