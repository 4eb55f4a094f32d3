package repository

import (
	"context"

	"github.com/user/prober-service/internal/entity"
)

// RecordRepository defines the contract for persisting classified records.
type RecordRepository interface {
	// Upsert inserts the record if its identifier is unseen, otherwise updates the
	// mutable fields and LastSeenAt. FirstSeenAt of an existing row is never changed.
	Upsert(ctx context.Context, record *entity.Record) error
	// List returns records ordered by LastSeenAt descending. Limit <= 0 means no limit.
	List(ctx context.Context, filter entity.RecordFilter) ([]entity.Record, error)
	// ExportAll returns every stored record. The slice is empty, never nil, on an empty store.
	ExportAll(ctx context.Context) ([]entity.Record, error)
}
