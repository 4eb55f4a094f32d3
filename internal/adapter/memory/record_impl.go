package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/repository"
)

type recordRepository struct {
	mu      sync.RWMutex
	records map[string]entity.Record
}

// NewRecordRepository returns a RecordRepository kept in process memory.
func NewRecordRepository() repository.RecordRepository {
	return &recordRepository{records: make(map[string]entity.Record)}
}

func (r *recordRepository) Upsert(_ context.Context, record *entity.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneRecord(*record)
	if existing, ok := r.records[record.Identifier]; ok {
		stored.FirstSeenAt = existing.FirstSeenAt
	}
	r.records[record.Identifier] = stored
	return nil
}

func (r *recordRepository) List(_ context.Context, filter entity.RecordFilter) ([]entity.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.Record, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Classification != nil && rec.Classification != *filter.Classification {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *recordRepository) ExportAll(ctx context.Context) ([]entity.Record, error) {
	out, err := r.List(ctx, entity.RecordFilter{})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func cloneRecord(rec entity.Record) entity.Record {
	attrs := make(map[string]string, len(rec.Attributes))
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	rec.Attributes = attrs
	return rec
}
