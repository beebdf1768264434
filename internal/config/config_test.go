package config_test

import (
	"testing"
	"time"

	"github.com/roomcast/roomcast/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROOMCAST_TOKEN_SECRET", "s3cret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.TypingTimeout != 5*time.Second {
		t.Errorf("TypingTimeout = %s, want 5s", cfg.TypingTimeout)
	}
	if cfg.ReceiptMinInterval != time.Second {
		t.Errorf("ReceiptMinInterval = %s, want 1s", cfg.ReceiptMinInterval)
	}
	if cfg.OutgoingBuffer != 32 {
		t.Errorf("OutgoingBuffer = %d, want 32", cfg.OutgoingBuffer)
	}
	if cfg.AnnounceRejoin {
		t.Error("AnnounceRejoin = true, want false by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ROOMCAST_TOKEN_SECRET", "s3cret")
	t.Setenv("ROOMCAST_LISTEN_ADDR", ":9090")
	t.Setenv("ROOMCAST_TYPING_TIMEOUT", "2s")
	t.Setenv("ROOMCAST_ANNOUNCE_REJOIN", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.TypingTimeout != 2*time.Second {
		t.Errorf("TypingTimeout = %s, want 2s", cfg.TypingTimeout)
	}
	if !cfg.AnnounceRejoin {
		t.Error("AnnounceRejoin = false, want true")
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("ROOMCAST_TOKEN_SECRET", "")

	if _, err := config.Load(); err == nil {
		t.Error("expected error when token secret is missing")
	}
}

func TestLoad_RejectsZeroTypingTimeout(t *testing.T) {
	t.Setenv("ROOMCAST_TOKEN_SECRET", "s3cret")
	t.Setenv("ROOMCAST_TYPING_TIMEOUT", "0s")

	if _, err := config.Load(); err == nil {
		t.Error("expected error for zero typing timeout")
	}
}
