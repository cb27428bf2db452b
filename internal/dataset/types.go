package dataset

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one upstream record with no fixed schema. Values are strings, numbers, or nil.
type RawRecord map[string]any

// RowKey identifies a canonical row. All parts are uppercase and trimmed.
type RowKey struct {
	StateCode    string
	DistrictCode string
	FinYear      string
	Month        string
}

// String joins the key parts for logging and lock hashing.
func (k RowKey) String() string {
	return strings.Join([]string{k.StateCode, k.DistrictCode, k.FinYear, k.Month}, "|")
}

// Less orders keys lexicographically part by part.
func (k RowKey) Less(o RowKey) bool {
	return k.String() < o.String()
}

// CanonicalRow is the normalized entity persisted by the reconciliation store.
// Key fields keep their display casing; use Key for matching.
// A nil measure means no alias for it was present in the source record.
type CanonicalRow struct {
	StateCode    string `json:"state_code"`
	StateName    string `json:"state_name"`
	DistrictCode string `json:"district_code"`
	DistrictName string `json:"district_name"`
	FinYear      string `json:"fin_year"`
	Month        string `json:"month"`

	TotalHouseholdsWorked  *int64           `json:"total_households_worked"`
	TotalIndividualsWorked *int64           `json:"total_individuals_worked"`
	Persondays             *int64           `json:"persondays"`
	Wages                  *decimal.Decimal `json:"wages"`
	AvgWage                *decimal.Decimal `json:"avg_wage"`
}

// Key returns the matching key for the row.
func (r CanonicalRow) Key() RowKey {
	return RowKey{
		StateCode:    NormalizeKeyPart(r.StateCode),
		DistrictCode: NormalizeKeyPart(r.DistrictCode),
		FinYear:      NormalizeKeyPart(r.FinYear),
		Month:        NormalizeKeyPart(r.Month),
	}
}

// NormalizeKeyPart uppercases and trims a key or filter value.
func NormalizeKeyPart(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Snapshot is an immutable copy of one ingestion batch.
type Snapshot struct {
	ID        string      `json:"id"`
	Dataset   string      `json:"dataset"`
	FetchedAt time.Time   `json:"fetched_at"`
	Records   []RawRecord `json:"records"`
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	ID          string    `json:"id"`
	Dataset     string    `json:"dataset"`
	FetchedAt   time.Time `json:"fetched_at"`
	RecordCount int       `json:"record_count"`
}

// Info summarizes the snapshot.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:          s.ID,
		Dataset:     s.Dataset,
		FetchedAt:   s.FetchedAt,
		RecordCount: len(s.Records),
	}
}
