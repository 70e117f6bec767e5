package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const upsertSnapshotQuery = `
	INSERT INTO snapshots (key, payload, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`

// PostgresStore keeps one JSONB row per collection
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database and applies the schema
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection without migrating it
func NewPostgresStoreWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, "SELECT payload FROM snapshots WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, payload []byte) error {
	return s.SaveAll(ctx, map[string][]byte{key: payload})
}

// SaveAll upserts every snapshot inside a single transaction
func (s *PostgresStore) SaveAll(ctx context.Context, snapshots map[string][]byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, key := range sortedKeys(snapshots) {
		// Sent as text: lib/pq encodes []byte as bytea, which jsonb rejects.
		if _, err := tx.ExecContext(ctx, upsertSnapshotQuery, key, string(snapshots[key])); err != nil {
			return fmt.Errorf("failed to write snapshot %s: %w", key, err)
		}
	}

	return tx.Commit()
}
