package entity

import (
	"fmt"
	"strings"
	"time"
)

// Classification is the categorical outcome assigned to a resolved candidate.
type Classification string

const (
	ClassificationFree       Classification = "free"
	ClassificationTrialOffer Classification = "trial_offer"
	ClassificationPaid       Classification = "paid"
	ClassificationUnknown    Classification = "unknown"
)

// Classifications lists every valid classification, in display order.
var Classifications = []Classification{
	ClassificationFree,
	ClassificationTrialOffer,
	ClassificationPaid,
	ClassificationUnknown,
}

// ParseClassification accepts the canonical names case-insensitively.
func ParseClassification(raw string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Classifications {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown classification %q", raw)
}

// Record mirrors the `records` table. Identifier is the unique key.
type Record struct {
	Identifier     string            `json:"identifier"`
	DisplayName    string            `json:"display_name"`
	Classification Classification    `json:"classification"`
	Attributes     map[string]string `json:"attributes"`
	FirstSeenAt    time.Time         `json:"first_seen_at"`
	LastSeenAt     time.Time         `json:"last_seen_at"`
}

// RecordFilter narrows a listing. A nil Classification lists every record.
type RecordFilter struct {
	Classification *Classification
	Limit          int
}
