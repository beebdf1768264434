// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the chat server.
type Config struct {
	// ListenAddr is the address the WebSocket server binds to.
	ListenAddr string `env:"ROOMCAST_LISTEN_ADDR" envDefault:":8080"`

	// StoragePath is the SQLite database file.
	StoragePath string `env:"ROOMCAST_STORAGE_PATH" envDefault:"roomcast.db"`

	// TokenSecret signs and verifies session tokens.
	TokenSecret string `env:"ROOMCAST_TOKEN_SECRET,required,notEmpty"`

	// TypingTimeout is the window after which a typing signal auto-clears.
	TypingTimeout time.Duration `env:"ROOMCAST_TYPING_TIMEOUT" envDefault:"5s"`

	// ReceiptMinInterval is the defensive floor between read receipts
	// accepted from the same user in the same room.
	ReceiptMinInterval time.Duration `env:"ROOMCAST_RECEIPT_MIN_INTERVAL" envDefault:"1s"`

	// OutgoingBuffer is the per-connection outbound frame queue size.
	OutgoingBuffer int `env:"ROOMCAST_OUTGOING_BUFFER" envDefault:"32"`

	// AnnounceRejoin re-emits the SYSTEM join notice when a connection
	// force-rejoins a room it is already subscribed to.
	AnnounceRejoin bool `env:"ROOMCAST_ANNOUNCE_REJOIN" envDefault:"false"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TypingTimeout <= 0 {
		return Config{}, fmt.Errorf("typing timeout must be positive")
	}
	if cfg.OutgoingBuffer <= 0 {
		return Config{}, fmt.Errorf("outgoing buffer must be positive")
	}
	return cfg, nil
}
