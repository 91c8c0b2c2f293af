package model

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// OutputPlaces is the number of decimal places values are rounded to when reported.
const OutputPlaces = 4

// Value is a computed number that may be unavailable because its history
// precondition was not met. An unavailable Value is never the same as zero.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps a computed number. NaN and infinities are reported as unavailable.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{Float: v, Valid: true}
}

// Rounded returns the value rounded to OutputPlaces. Rounding happens only here,
// at the output boundary.
func (v Value) Rounded() float64 {
	if !v.Valid {
		return math.NaN()
	}
	f, _ := decimal.NewFromFloat(v.Float).Round(OutputPlaces).Float64()
	return f
}

// String renders the rounded value, or an empty string when unavailable.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return decimal.NewFromFloat(v.Float).Round(OutputPlaces).String()
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (v Value) MarshalCSV() (string, error) {
	return v.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller. Empty cells and NaN spellings
// decode as unavailable.
func (v *Value) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "n/a":
		*v = Value{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f, _ := d.Float64()
	*v = Some(f)
	return nil
}

// MAResult is the 60-day moving-average relationship for the latest trading day.
type MAResult struct {
	LatestClose Value
	SMA         Value
	Relation    Relation
	Cross       CrossSignal
}

// MACDResult is the weekly MACD(12,26,9) state at the latest week.
type MACDResult struct {
	DIF  Value
	DEA  Value
	Hist Value
	Turn TurnSignal
}

// Indicators holds both computations for one instrument.
type Indicators struct {
	MA   MAResult
	MACD MACDResult
}
