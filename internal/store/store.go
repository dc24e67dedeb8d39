package store

import (
	"context"

	"github.com/sells-group/los-review/internal/model"
)

const (
	tableCurrent = "encounters_current"
	tableHistory = "encounters_history"
)

// SnapshotFilter narrows snapshot reads. The zero value reads everything.
type SnapshotFilter struct {
	EncounterIDs []string `json:"encounter_ids,omitempty"`
}

// Store is the read side of the encounter storage plus the seeding hooks
// used by the import command and tests.
type Store interface {
	// Snapshots
	CurrentSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error)
	HistoricalSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error)

	// Seeding
	UpsertCurrent(ctx context.Context, records []Record) (int64, error)
	AppendHistory(ctx context.Context, records []Record) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
