package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	apperrors "portfolio_exporter/pkg/errors"
)

// SQLiteStore is a key/value blob store backed by a single sqlite table.
// Values are stored alongside a sha256 checksum so corruption is detected
// on read rather than surfacing as silently wrong state.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping failed: %v", apperrors.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		checksum BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	checksum := sha256.Sum256([]byte(value))
	query := `INSERT OR REPLACE INTO blobs (key, value, checksum, updated_at) VALUES (?, ?, ?, strftime('%s','now'))`
	if _, err := tx.ExecContext(ctx, query, key, value, checksum[:]); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value, checksum FROM blobs WHERE key = ?`
	var value string
	var storedChecksum []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read blob: %w", err)
	}

	computed := sha256.Sum256([]byte(value))
	if len(storedChecksum) != len(computed) {
		return "", false, fmt.Errorf("%w: checksum length mismatch for key %q", apperrors.ErrStateCorrupted, key)
	}
	for i := range computed {
		if storedChecksum[i] != computed[i] {
			return "", false, fmt.Errorf("%w: checksum verification failed for key %q", apperrors.ErrStateCorrupted, key)
		}
	}

	return value, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
