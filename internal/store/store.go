// Package store persists report snapshots so the HTTP API can serve the last
// known result without a round trip to the CRM.
package store

import (
	"context"
	"time"

	"github.com/sells-group/crm-report/internal/model"
)

// ListFilter specifies criteria for listing snapshots.
type ListFilter struct {
	Kind   model.SnapshotKind `json:"kind,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for report snapshots.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, kind model.SnapshotKind, takenAt time.Time, data []byte) (*model.Snapshot, error)
	LatestSnapshot(ctx context.Context, kind model.SnapshotKind) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context, filter ListFilter) ([]model.SnapshotMeta, error)
	PruneSnapshots(ctx context.Context, kind model.SnapshotKind, keep int) (int, error)

	// Contract rows
	SaveContractRows(ctx context.Context, snapshotID string, records []model.ContractRecord) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
