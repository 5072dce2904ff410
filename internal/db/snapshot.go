// Package db persists effect snapshots of simulated entities.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
)

// ErrSnapshotNotFound is returned by Load when an owner has no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the saved effect state of one owner.
type Snapshot struct {
	OwnerID   uuid.UUID
	OwnerName string
	Effects   []abilitysystem.SavedEffect
	SavedAt   time.Time
}

// Store saves and loads snapshots. A Save replaces the previous snapshot of
// the owner.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, ownerID uuid.UUID) (Snapshot, error)
	Close() error
}

// saveAllLimit bounds concurrent saves in SaveAll.
const saveAllLimit = 8

// SaveAll saves snaps concurrently and returns the first error.
func SaveAll(ctx context.Context, store Store, snaps []Snapshot) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(saveAllLimit)
	for _, snap := range snaps {
		g.Go(func() error {
			if err := store.Save(ctx, snap); err != nil {
				return fmt.Errorf("saving %s (%s): %w", snap.OwnerName, snap.OwnerID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
