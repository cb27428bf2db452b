package dataset

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrMissingKey rejects a record that names no state or no district.
var ErrMissingKey = errors.New("record missing state or district name")

// Normalized is a canonical row plus the fields whose present values were unparseable and
// stored as zero.
type Normalized struct {
	Row     CanonicalRow
	Coerced []Field
}

// Normalize converts a raw record into a canonical row.
//
// Measures absent under every alias stay nil (unknown). Measures present but unparseable,
// negative counts, and counts outside the int64 range become zero and are listed in Coerced.
func Normalize(rec RawRecord) (Normalized, error) {
	stateName, okState := rec.ResolveString(StateNameAlias)
	districtName, okDistrict := rec.ResolveString(DistrictNameAlias)
	if !okState || !okDistrict {
		return Normalized{}, ErrMissingKey
	}

	stateCode, ok := rec.ResolveString(StateCodeAlias)
	if !ok {
		stateCode = stateName
	}
	districtCode, ok := rec.ResolveString(DistrictCodeAlias)
	if !ok {
		districtCode = districtName
	}
	finYear, _ := rec.ResolveString(FinYearAlias)
	month, _ := rec.ResolveString(MonthAlias)

	out := Normalized{
		Row: CanonicalRow{
			StateCode:    stateCode,
			StateName:    stateName,
			DistrictCode: districtCode,
			DistrictName: districtName,
			FinYear:      finYear,
			Month:        month,
		},
	}
	out.Row.TotalHouseholdsWorked = out.count(rec, HouseholdsAlias)
	out.Row.TotalIndividualsWorked = out.count(rec, IndividualsAlias)
	out.Row.Persondays = out.count(rec, PersondaysAlias)
	out.Row.Wages = out.amount(rec, WagesAlias)
	out.Row.AvgWage = out.amount(rec, AvgWageAlias)
	return out, nil
}

func (n *Normalized) count(rec RawRecord, a Alias) *int64 {
	num := rec.ResolveNumber(a)
	switch num.Status {
	case Missing:
		return nil
	case Defaulted:
		n.Coerced = append(n.Coerced, a.Field)
		zero := int64(0)
		return &zero
	}
	v, ok := num.Int()
	if !ok || v < 0 {
		n.Coerced = append(n.Coerced, a.Field)
		v = 0
	}
	return &v
}

func (n *Normalized) amount(rec RawRecord, a Alias) *decimal.Decimal {
	num := rec.ResolveNumber(a)
	switch num.Status {
	case Missing:
		return nil
	case Defaulted:
		n.Coerced = append(n.Coerced, a.Field)
	}
	v := num.Value
	return &v
}
