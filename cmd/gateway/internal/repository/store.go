package repository

import (
	"context"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

// SnapshotStore persists the latest quote per symbol across gateway restarts.
type SnapshotStore interface {
	GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error)
	Record(ctx context.Context, q models.Quote) error
	Close() error
}
