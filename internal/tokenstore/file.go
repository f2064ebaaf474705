// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// File persists tokens as a JSON object keyed by scope set. Every Put
// rewrites the file atomically.
type File struct {
	path string

	mu     sync.Mutex
	tokens map[string]Token
}

// OpenFile loads path if it exists.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, tokens: make(map[string]Token)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("tokenstore: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.tokens); err != nil {
		return nil, fmt.Errorf("tokenstore: decode %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, scopes []string) (Token, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := best(slices.Collect(maps.Values(f.tokens)), scopes, time.Now())
	return tok, ok, nil
}

func (f *File) Put(_ context.Context, tok Token) error {
	if err := validate(tok); err != nil {
		return err
	}
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	next := maps.Clone(f.tokens)
	maps.DeleteFunc(next, func(_ string, t Token) bool { return !t.Valid(now) })
	next[ScopeKey(tok.Scopes)] = tok
	if err := f.write(next); err != nil {
		return err
	}
	f.tokens = next
	return nil
}

func (f *File) write(tokens map[string]Token) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenstore: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("tokenstore: create dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("tokenstore: create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("tokenstore: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("tokenstore: replace %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
