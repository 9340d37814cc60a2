// Package units provides rounding at presentation boundaries.
// Engines keep full float precision; only output formatting rounds.
package units

import "github.com/shopspring/decimal"

// Display precisions for each kind of reported quantity.
const (
	USDPlaces     int32 = 2
	PercentPlaces int32 = 1
	PerUnitPlaces int32 = 4
	CBMPlaces     int32 = 3
	CartonPlaces  int32 = 1
	WeightPlaces  int32 = 2
)

// Round rounds half away from zero to the given number of places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// USD rounds a monetary amount to cents.
func USD(v float64) float64 {
	return Round(v, USDPlaces)
}

// Percent rounds a percentage to one decimal place.
func Percent(v float64) float64 {
	return Round(v, PercentPlaces)
}

// PerUnit keeps four decimals so per-unit × quantity stays within a cent
// of the total for realistic order sizes.
func PerUnit(v float64) float64 {
	return Round(v, PerUnitPlaces)
}

// CBM rounds a cubic-meter volume.
func CBM(v float64) float64 {
	return Round(v, CBMPlaces)
}

// Cartons rounds a carton count.
func Cartons(v float64) float64 {
	return Round(v, CartonPlaces)
}

// Weight rounds kilograms.
func Weight(v float64) float64 {
	return Round(v, WeightPlaces)
}

// FormatUSD renders an amount with two fixed decimals.
func FormatUSD(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(USDPlaces)
}

// FormatPerUnit renders a per-unit amount with four fixed decimals.
func FormatPerUnit(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(PerUnitPlaces)
}
