// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tokenstore caches access tokens across restarts.
//
// A lookup succeeds when a stored token is unexpired and covers every
// requested scope. Tokens are keyed by their canonical scope set, so a
// broader token can satisfy a narrower request.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// ErrInvalidToken is returned by Put for tokens without an access token.
var ErrInvalidToken = errors.New("tokenstore: invalid token")

// Store is a token cache.
type Store interface {
	// Get returns a valid token covering scopes.
	Get(ctx context.Context, scopes []string) (Token, bool, error)
	// Put stores tok, replacing any token with the same scope set.
	Put(ctx context.Context, tok Token) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the file, database or directory used by the file, sqlite and
	// badger backends.
	Path string `yaml:"path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// KeyPrefix namespaces redis keys.
	KeyPrefix string `yaml:"key_prefix"`
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.backend() {
	case BackendMemory:
		return nil
	case BackendFile, BackendSQLite, BackendBadger:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("tokenstore: %s backend requires a path", c.backend())
		}
		return nil
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("tokenstore: redis backend requires redis_addr")
		}
		return nil
	default:
		return fmt.Errorf("tokenstore: unknown backend %q", c.Backend)
	}
}

func (c Config) backend() string {
	if c.Backend == "" {
		return BackendMemory
	}
	return strings.ToLower(c.Backend)
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.backend() {
	case BackendFile:
		return OpenFile(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case BackendRedis:
		return OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, KeyPrefix: cfg.KeyPrefix})
	case BackendBadger:
		return OpenBadger(cfg.Path)
	default:
		return NewMemory(), nil
	}
}

func validate(tok Token) error {
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrInvalidToken)
	}
	return nil
}

func ttl(tok Token, now time.Time) time.Duration {
	return tok.Expiry().Sub(now)
}
