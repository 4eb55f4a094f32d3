package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/prober-service/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id              BIGSERIAL PRIMARY KEY,
	identifier      TEXT NOT NULL UNIQUE,
	display_name    TEXT NOT NULL DEFAULT '',
	classification  TEXT NOT NULL,
	attributes      JSONB NOT NULL DEFAULT '{}'::jsonb,
	first_seen_at   TIMESTAMPTZ NOT NULL,
	last_seen_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS records_classification_idx ON records (classification);
CREATE INDEX IF NOT EXISTS records_last_seen_idx ON records (last_seen_at DESC);
`

// RecordRepoImpl implements repository.RecordRepository on PostgreSQL.
type RecordRepoImpl struct {
	db *pgxpool.Pool
}

func NewRecordRepo(db *pgxpool.Pool) *RecordRepoImpl {
	return &RecordRepoImpl{db: db}
}

// EnsureSchema creates the records table and its indexes if missing.
func (r *RecordRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure records schema: %w", err)
	}
	return nil
}

// Upsert inserts or updates a record. first_seen_at is left untouched on conflict.
func (r *RecordRepoImpl) Upsert(ctx context.Context, record *entity.Record) error {
	attrs, err := marshalAttributes(record.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records (identifier, display_name, classification, attributes, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identifier) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			classification = EXCLUDED.classification,
			attributes = EXCLUDED.attributes,
			last_seen_at = EXCLUDED.last_seen_at;
	`
	_, err = r.db.Exec(ctx, query,
		record.Identifier,
		record.DisplayName,
		string(record.Classification),
		attrs,
		record.FirstSeenAt,
		record.LastSeenAt,
	)
	return err
}

func (r *RecordRepoImpl) List(ctx context.Context, filter entity.RecordFilter) ([]entity.Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.Classification != nil {
		args = append(args, string(*filter.Classification))
		where = append(where, fmt.Sprintf("classification = $%d", len(args)))
	}

	query := `SELECT identifier, display_name, classification, attributes, first_seen_at, last_seen_at FROM records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen_at DESC, identifier ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *RecordRepoImpl) ExportAll(ctx context.Context) ([]entity.Record, error) {
	return r.query(ctx, `
		SELECT identifier, display_name, classification, attributes, first_seen_at, last_seen_at
		FROM records
		ORDER BY identifier ASC;
	`)
}

func (r *RecordRepoImpl) query(ctx context.Context, query string, args ...any) ([]entity.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []entity.Record{}
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (entity.Record, error) {
	var (
		rec            entity.Record
		classification string
		attrsJSON      []byte
	)
	if err := row.Scan(
		&rec.Identifier,
		&rec.DisplayName,
		&classification,
		&attrsJSON,
		&rec.FirstSeenAt,
		&rec.LastSeenAt,
	); err != nil {
		return rec, err
	}
	rec.Classification = entity.Classification(classification)
	rec.Attributes = map[string]string{}
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, &rec.Attributes); err != nil {
			return rec, fmt.Errorf("decode attributes of %s: %w", rec.Identifier, err)
		}
	}
	return rec, nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return b, nil
}
