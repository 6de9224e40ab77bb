package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// sqliteTokenName is the single row key; the service holds one credential.
const sqliteTokenName = "default"

// SQLiteTokenStore keeps the token in a SQLite database.
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewSQLiteTokenStore opens (or creates) the database at path and ensures the
// tokens table exists.
func NewSQLiteTokenStore(ctx context.Context, path string) (*SQLiteTokenStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening token database %s: %w", path, err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tokens (
		name TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tokens table: %w", err)
	}
	return &SQLiteTokenStore{db: db}, nil
}

// Load reads the stored token row.
func (s *SQLiteTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT token FROM tokens WHERE name = ?", sqliteTokenName).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("reading token from database: %w", err)
	}
	return decodeToken(data, "sqlite")
}

// Save upserts the token row.
func (s *SQLiteTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tokens (name, token, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		sqliteTokenName, string(data))
	if err != nil {
		return fmt.Errorf("writing token to database: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteTokenStore) Close() error {
	return s.db.Close()
}
