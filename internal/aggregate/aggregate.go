// Package aggregate derives dashboard KPIs, time series, and state/district catalogs from fetched
// records. It is read-only: callers decide what to cache.
package aggregate

import (
	"errors"
	"math"
	"sort"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/shopspring/decimal"
)

// ErrNotFound signals that no record matched the requested state/district.
var ErrNotFound = errors.New("no matching records")

// KPIs are the headline numbers for one district.
type KPIs struct {
	TotalExpenditure      float64 `json:"total_expenditure"`
	TotalHouseholdsWorked int64   `json:"total_households_worked"`
	TotalPersondays       int64   `json:"total_persondays"`
	RecordsCount          int     `json:"records_count"`
}

// Point is one series entry. There is one point per matched record, duplicates included.
type Point struct {
	FinYear     string  `json:"fin_year"`
	Month       string  `json:"month"`
	Expenditure float64 `json:"expenditure"`
	Households  int64   `json:"households"`
	Persondays  int64   `json:"persondays"`
}

// Result bundles KPIs and series.
type Result struct {
	KPIs   KPIs    `json:"kpis"`
	Series []Point `json:"series"`
}

// Aggregate filters records by state and district name and reduces them.
//
// The series is ordered by (fin_year, month) compared as raw strings, so "Dec" sorts before
// "Jan". Clients depend on this order.
func Aggregate(records []dataset.RawRecord, state, district string) (Result, error) {
	if dataset.NormalizeKeyPart(state) == "" || dataset.NormalizeKeyPart(district) == "" {
		return Result{}, ErrNotFound
	}
	matched := Filter(records, state, district)
	if len(matched) == 0 {
		return Result{}, ErrNotFound
	}

	points := make([]Point, 0, len(matched))
	total := decimal.Zero
	var households, persondays int64
	for _, rec := range matched {
		finYear, _ := rec.ResolveString(dataset.FinYearAlias)
		month, _ := rec.ResolveString(dataset.MonthAlias)
		exp := rec.ResolveNumber(dataset.ExpenditureAlias)
		hh := count(rec, dataset.HouseholdsAlias)
		pd := count(rec, dataset.PersondaysAlias)

		total = total.Add(exp.Value)
		households = addSaturating(households, hh)
		persondays = addSaturating(persondays, pd)
		points = append(points, Point{
			FinYear:     finYear,
			Month:       month,
			Expenditure: exp.Float(),
			Households:  hh,
			Persondays:  pd,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].FinYear != points[j].FinYear {
			return points[i].FinYear < points[j].FinYear
		}
		return points[i].Month < points[j].Month
	})

	totalExp, _ := total.Round(2).Float64()
	return Result{
		KPIs: KPIs{
			TotalExpenditure:      totalExp,
			TotalHouseholdsWorked: households,
			TotalPersondays:       persondays,
			RecordsCount:          len(matched),
		},
		Series: points,
	}, nil
}

// count resolves an integer measure. Values outside the int64 range count as zero.
func count(rec dataset.RawRecord, a dataset.Alias) int64 {
	n, ok := rec.ResolveNumber(a).Int()
	if !ok {
		return 0
	}
	return n
}

// addSaturating adds b to a, pinning the result at the int64 bounds instead of wrapping.
func addSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

// Filter keeps records whose state and district names equal the arguments after trimming and
// case folding. An empty district matches every district of the state.
func Filter(records []dataset.RawRecord, state, district string) []dataset.RawRecord {
	wantState := dataset.NormalizeKeyPart(state)
	wantDistrict := dataset.NormalizeKeyPart(district)
	var out []dataset.RawRecord
	for _, rec := range records {
		s, _ := rec.ResolveString(dataset.StateNameAlias)
		if dataset.NormalizeKeyPart(s) != wantState {
			continue
		}
		if wantDistrict != "" {
			d, _ := rec.ResolveString(dataset.DistrictNameAlias)
			if dataset.NormalizeKeyPart(d) != wantDistrict {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}
