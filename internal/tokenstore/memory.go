// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory keeps tokens for the life of the process.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]Token)}
}

func (m *Memory) Get(_ context.Context, scopes []string) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := best(slices.Collect(maps.Values(m.tokens)), scopes, time.Now())
	return tok, ok, nil
}

func (m *Memory) Put(_ context.Context, tok Token) error {
	if err := validate(tok); err != nil {
		return err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.DeleteFunc(m.tokens, func(_ string, t Token) bool { return !t.Valid(now) })
	m.tokens[ScopeKey(tok.Scopes)] = tok
	return nil
}

func (m *Memory) Close() error { return nil }
