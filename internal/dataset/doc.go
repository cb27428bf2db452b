// Package dataset defines the raw and canonical record shapes for the labor-statistics feed and
// the single place where loosely-typed upstream values are resolved and coerced.
//
// Upstream snapshots rename fields over time (total_households_worked vs Total_Households_Worked,
// Wages vs total_expenditure_in_rs, ...). Every canonical field owns an ordered alias list in
// aliases.go; the first populated alias wins. Numeric values go through ParseNumber, which reports
// whether a value was Parsed, Missing, or Defaulted to zero because it could not be parsed.
package dataset
