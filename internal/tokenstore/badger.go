// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("token:")

// Badger stores tokens in an embedded badger database; entries carry a TTL
// equal to the token lifetime.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens or creates the database directory at path.
func OpenBadger(path string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("tokenstore: badger open: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, scopes []string) (Token, bool, error) {
	var tokens []Token
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var tok Token
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &tok)
			}); err != nil {
				return err
			}
			tokens = append(tokens, tok)
		}
		return nil
	})
	if err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: badger read: %w", err)
	}
	tok, ok := best(tokens, scopes, time.Now())
	return tok, ok, nil
}

func (b *Badger) Put(_ context.Context, tok Token) error {
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
	key := append(append([]byte(nil), badgerPrefix...), ScopeKey(tok.Scopes)...)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(life))
	})
}

func (b *Badger) Close() error { return b.db.Close() }
