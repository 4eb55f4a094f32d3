package handler

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/user/prober-service/internal/entity"
)

// ExportColumns is the header row of the CSV export.
var ExportColumns = []string{"identifier", "display_name", "classification", "attributes", "first_seen_at", "last_seen_at"}

// WriteRecordsCSV writes a header row and one row per record. Attributes are JSON encoded.
func WriteRecordsCSV(w io.Writer, records []entity.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, rec := range records {
		attrs := rec.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		encoded, err := json.Marshal(attrs)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{
			rec.Identifier,
			rec.DisplayName,
			string(rec.Classification),
			string(encoded),
			rec.FirstSeenAt.UTC().Format(time.RFC3339),
			rec.LastSeenAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
