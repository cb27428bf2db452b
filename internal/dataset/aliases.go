package dataset

// Field names a canonical field.
type Field string

// Canonical fields.
const (
	FieldStateName    Field = "state_name"
	FieldStateCode    Field = "state_code"
	FieldDistrictName Field = "district_name"
	FieldDistrictCode Field = "district_code"
	FieldFinYear      Field = "fin_year"
	FieldMonth        Field = "month"
	FieldHouseholds   Field = "total_households_worked"
	FieldIndividuals  Field = "total_individuals_worked"
	FieldPersondays   Field = "persondays"
	FieldWages        Field = "wages"
	FieldAvgWage      Field = "avg_wage"
	FieldExpenditure  Field = "total_expenditure"
)

// Alias lists the upstream names of one canonical field in priority order.
type Alias struct {
	Field Field
	Names []string
}

// Alias table. Order matters: the first populated name wins.
var (
	StateNameAlias = Alias{FieldStateName, []string{"state_name", "State_Name", "state"}}
	StateCodeAlias = Alias{FieldStateCode, []string{"state_code", "State_Code", "state"}}

	DistrictNameAlias = Alias{FieldDistrictName, []string{"district_name", "District_Name", "district"}}
	DistrictCodeAlias = Alias{FieldDistrictCode, []string{"district_code", "District_Code", "district"}}

	FinYearAlias = Alias{FieldFinYear, []string{"fin_year", "financial_year", "Fin_Year"}}
	MonthAlias   = Alias{FieldMonth, []string{"month", "Month"}}

	HouseholdsAlias = Alias{FieldHouseholds, []string{
		"total_households_worked",
		"Total_Households_Worked",
		"Total_Households",
	}}
	IndividualsAlias = Alias{FieldIndividuals, []string{
		"total_individuals_worked",
		"Total_Individuals_Worked",
	}}
	PersondaysAlias = Alias{FieldPersondays, []string{
		"persondays",
		"Persondays_of_Central_Liability_so_far",
		"Persondays",
	}}
	WagesAlias   = Alias{FieldWages, []string{"wages", "Wages"}}
	AvgWageAlias = Alias{FieldAvgWage, []string{"avg_wage", "Average_Wage_rate_per_day_per_person"}}

	ExpenditureAlias = Alias{FieldExpenditure, []string{
		"total_expenditure",
		"Total_Exp",
		"Wages",
		"total_expenditure_in_rs",
		"expenditure",
	}}
)

// Lookup returns the upstream name and value of the first populated alias.
func (r RawRecord) Lookup(a Alias) (string, any, bool) {
	for _, name := range a.Names {
		if r.populated(name) {
			return name, r[name], true
		}
	}
	return "", nil, false
}

// ResolveString returns the first populated alias as a trimmed string.
func (r RawRecord) ResolveString(a Alias) (string, bool) {
	name, _, ok := r.Lookup(a)
	if !ok {
		return "", false
	}
	return r.GetString(name)
}

// ResolveNumber parses the first populated alias. An unparseable winner is not skipped in favor
// of a later alias; it yields a Defaulted zero.
func (r RawRecord) ResolveNumber(a Alias) Number {
	_, v, ok := r.Lookup(a)
	if !ok {
		return Number{Status: Missing}
	}
	return ParseNumber(v)
}
