// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tokens (
	scope_key         TEXT PRIMARY KEY,
	access_token      TEXT NOT NULL,
	token_type        TEXT NOT NULL,
	expires_in        INTEGER NOT NULL,
	expiry_from_epoch INTEGER NOT NULL,
	scopes            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokens_expiry ON tokens(expiry_from_epoch);
`

// SQLite stores tokens in a WAL-mode database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: sqlite open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tokenstore: sqlite ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tokenstore: sqlite migrate failed: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, scopes []string) (Token, bool, error) {
	now := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT access_token, token_type, expires_in, expiry_from_epoch, scopes FROM tokens WHERE expiry_from_epoch > ?`,
		now.Unix())
	if err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: sqlite query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []Token
	for rows.Next() {
		var (
			tok       Token
			rawScopes string
		)
		if err := rows.Scan(&tok.AccessToken, &tok.TokenType, &tok.ExpiresIn, &tok.ExpiryFromEpoch, &rawScopes); err != nil {
			return Token{}, false, fmt.Errorf("tokenstore: sqlite scan: %w", err)
		}
		if err := json.Unmarshal([]byte(rawScopes), &tok.Scopes); err != nil {
			return Token{}, false, fmt.Errorf("tokenstore: sqlite scopes: %w", err)
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return Token{}, false, fmt.Errorf("tokenstore: sqlite rows: %w", err)
	}
	tok, ok := best(tokens, scopes, now)
	return tok, ok, nil
}

func (s *SQLite) Put(ctx context.Context, tok Token) error {
	if err := validate(tok); err != nil {
		return err
	}
	scopes, err := json.Marshal(tok.Scopes)
	if err != nil {
		return fmt.Errorf("tokenstore: encode scopes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tokenstore: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE expiry_from_epoch <= ?`, time.Now().Unix()); err != nil {
		return fmt.Errorf("tokenstore: sqlite prune: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO tokens (scope_key, access_token, token_type, expires_in, expiry_from_epoch, scopes) VALUES (?, ?, ?, ?, ?, ?)`,
		ScopeKey(tok.Scopes), tok.AccessToken, tok.TokenType, tok.ExpiresIn, tok.ExpiryFromEpoch, string(scopes)); err != nil {
		return fmt.Errorf("tokenstore: sqlite insert: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Close() error { return s.db.Close() }
