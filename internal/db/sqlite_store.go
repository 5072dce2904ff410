package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots in a single-file SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and applies the sqlite migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB, goose.DialectSQLite3, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Save upserts snap.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	effects, err := marshalEffects(snap.Effects)
	if err != nil {
		return err
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO effect_snapshots (owner_id, owner_name, effects, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE
		SET owner_name = excluded.owner_name,
		    effects    = excluded.effects,
		    saved_at   = excluded.saved_at`,
		snap.OwnerID.String(), snap.OwnerName, string(effects), savedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", snap.OwnerID, err)
	}
	return nil
}

// Load returns the snapshot of ownerID or ErrSnapshotNotFound.
func (s *SQLiteStore) Load(ctx context.Context, ownerID uuid.UUID) (Snapshot, error) {
	snap := Snapshot{OwnerID: ownerID}
	var (
		effects string
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT owner_name, effects, saved_at
		FROM effect_snapshots
		WHERE owner_id = ?`, ownerID.String(),
	).Scan(&snap.OwnerName, &effects, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("owner %s: %w", ownerID, ErrSnapshotNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying snapshot %s: %w", ownerID, err)
	}
	snap.SavedAt = time.UnixMilli(savedAt).UTC()
	if snap.Effects, err = unmarshalEffects([]byte(effects)); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", ownerID, err)
	}
	return snap, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.sqlDB.Close()
}
