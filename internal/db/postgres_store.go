package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
)

// PostgresStore keeps snapshots in the effect_snapshots table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on a migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save upserts snap.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	effects, err := marshalEffects(snap.Effects)
	if err != nil {
		return err
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO effect_snapshots (owner_id, owner_name, effects, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE
		SET owner_name = EXCLUDED.owner_name,
		    effects    = EXCLUDED.effects,
		    saved_at   = EXCLUDED.saved_at`,
		snap.OwnerID, snap.OwnerName, effects, savedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", snap.OwnerID, err)
	}
	return nil
}

// Load returns the snapshot of ownerID or ErrSnapshotNotFound.
func (s *PostgresStore) Load(ctx context.Context, ownerID uuid.UUID) (Snapshot, error) {
	snap := Snapshot{OwnerID: ownerID}
	var effects []byte
	err := s.pool.QueryRow(ctx, `
		SELECT owner_name, effects, saved_at
		FROM effect_snapshots
		WHERE owner_id = $1`, ownerID,
	).Scan(&snap.OwnerName, &effects, &snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("owner %s: %w", ownerID, ErrSnapshotNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying snapshot %s: %w", ownerID, err)
	}
	if snap.Effects, err = unmarshalEffects(effects); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", ownerID, err)
	}
	return snap, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalEffects(effects []abilitysystem.SavedEffect) ([]byte, error) {
	if effects == nil {
		effects = []abilitysystem.SavedEffect{}
	}
	b, err := json.Marshal(effects)
	if err != nil {
		return nil, fmt.Errorf("encoding effects: %w", err)
	}
	return b, nil
}

func unmarshalEffects(b []byte) ([]abilitysystem.SavedEffect, error) {
	var effects []abilitysystem.SavedEffect
	if err := json.Unmarshal(b, &effects); err != nil {
		return nil, fmt.Errorf("decoding effects: %w", err)
	}
	return effects, nil
}
