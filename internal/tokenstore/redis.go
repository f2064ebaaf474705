// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "connectbridge:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each token under its scope key with a matching TTL.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokenstore: redis connection failed: %w", err)
	}
	return newRedis(client, cfg.KeyPrefix), nil
}

func newRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix + "token:"}
}

func (r *Redis) Get(ctx context.Context, scopes []string) (Token, bool, error) {
	now := time.Now()

	// Fast path: a token stored for exactly this scope set.
	if tok, ok, err := r.load(ctx, r.prefix+ScopeKey(scopes)); err != nil {
		return Token{}, false, err
	} else if ok && tok.Matches(scopes, now) {
		return tok, true, nil
	}

	var tokens []Token
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		tok, ok, err := r.load(ctx, iter.Val())
		if err != nil {
			return Token{}, false, err
		}
		if ok {
			tokens = append(tokens, tok)
		}
	}
	if err := iter.Err(); err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: redis scan: %w", err)
	}
	tok, ok := best(tokens, scopes, now)
	return tok, ok, nil
}

func (r *Redis) load(ctx context.Context, key string) (Token, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: redis get: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(val, &tok); err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: redis decode %s: %w", key, err)
	}
	return tok, true, nil
}

func (r *Redis) Put(ctx context.Context, tok Token) error {
	if err := validate(tok); err != nil {
		return err
	}
	life := ttl(tok, time.Now())
	if life <= 0 {
		return fmt.Errorf("%w: already expired", ErrInvalidToken)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("tokenstore: encode: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+ScopeKey(tok.Scopes), data, life).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
