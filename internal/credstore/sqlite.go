package credstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumeo-social/walletbridge/internal/keyring"
)

// SQLiteStore implements Store using SQLite with keyring-encrypted values.
type SQLiteStore struct {
	db   *sql.DB
	ring keyring.Provider
}

// NewSQLite creates a SQLite-backed encrypted store.
func NewSQLite(dbPath string, ring keyring.Provider) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	store := &SQLiteStore{db: db, ring: ring}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get retrieves and decrypts a value. Missing keys return ("", nil).
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE key = ?`, key).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential %q: %w", key, err)
	}

	blob, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decode credential %q: %w", key, err)
	}

	plaintext, err := s.ring.Decrypt(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %q: %w", key, err)
	}

	return string(plaintext), nil
}

// Put encrypts and upserts a value.
func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	blob, err := s.ring.Encrypt(ctx, []byte(value))
	if err != nil {
		return fmt.Errorf("encrypt credential %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, base64.StdEncoding.EncodeToString(blob), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write credential %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Removing a missing key is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove credential %q: %w", key, err)
	}
	return nil
}

// Clear wipes every credential in a single transaction.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
