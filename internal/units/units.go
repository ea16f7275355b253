package units

import (
	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

// Unit name constants as they appear in VariableSummary.Unit.
const (
	Celsius    = "celsius"
	Fahrenheit = "fahrenheit"
	Millimeter = "mm"
	Inch       = "in"
	KMH        = "km/h"
	MPH        = "mph"
	Percent    = "%"
	Index      = "index"
)

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9/5 + 32
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

// MMToIn converts millimeters to inches.
func MMToIn(mm float64) float64 {
	return mm / 25.4
}

// InToMM converts inches to millimeters.
func InToMM(in float64) float64 {
	return in * 25.4
}

// KMHToMPH converts kilometers per hour to miles per hour.
func KMHToMPH(kmh float64) float64 {
	return kmh / 1.609344
}

// MPHToKMH converts miles per hour to kilometers per hour.
func MPHToKMH(mph float64) float64 {
	return mph * 1.609344
}

// imperialUnit maps a metric unit name to its imperial counterpart.
// Dimensionless units map to themselves.
func imperialUnit(unit string) string {
	switch unit {
	case Celsius:
		return Fahrenheit
	case Millimeter:
		return Inch
	case KMH:
		return MPH
	default:
		return unit
	}
}

// toImperial converts a single metric value for the given metric unit.
func toImperial(unit string, v float64) float64 {
	switch unit {
	case Celsius:
		return CToF(v)
	case Millimeter:
		return MMToIn(v)
	case KMH:
		return KMHToMPH(v)
	default:
		return v
	}
}

// deltaToImperial converts a value that represents a difference rather than
// an absolute reading. Temperature deltas must not pick up the 32° offset.
func deltaToImperial(unit string, v float64) float64 {
	if unit == Celsius {
		return v * 9 / 5
	}
	return toImperial(unit, v)
}

// ConvertValue converts a metric value for the given metric unit into the
// requested unit system. Metric requests are returned unchanged.
func ConvertValue(unit string, v float64, to models.Units) float64 {
	if to != models.UnitsImperial {
		return v
	}
	return toImperial(unit, v)
}

// ConvertSummary converts a metric VariableSummary into the requested unit
// system. Std is a spread, so temperature Std scales without the offset.
func ConvertSummary(s models.VariableSummary, to models.Units) models.VariableSummary {
	if to != models.UnitsImperial {
		return s
	}
	out := s
	out.Unit = imperialUnit(s.Unit)
	out.Mean = toImperial(s.Unit, s.Mean)
	out.Std = deltaToImperial(s.Unit, s.Std)
	out.P10 = toImperial(s.Unit, s.P10)
	out.P25 = toImperial(s.Unit, s.P25)
	out.P50 = toImperial(s.Unit, s.P50)
	out.P75 = toImperial(s.Unit, s.P75)
	out.P90 = toImperial(s.Unit, s.P90)
	return out
}

// MetricSummary converts a summary back to metric units. Inverse of
// ConvertSummary within floating-point tolerance.
func MetricSummary(s models.VariableSummary, from models.Units) models.VariableSummary {
	if from != models.UnitsImperial {
		return s
	}
	out := s
	switch s.Unit {
	case Fahrenheit:
		out.Unit = Celsius
		out.Mean = FToC(s.Mean)
		out.Std = s.Std * 5 / 9
		out.P10 = FToC(s.P10)
		out.P25 = FToC(s.P25)
		out.P50 = FToC(s.P50)
		out.P75 = FToC(s.P75)
		out.P90 = FToC(s.P90)
	case Inch:
		out.Unit = Millimeter
		out.Mean = InToMM(s.Mean)
		out.Std = InToMM(s.Std)
		out.P10 = InToMM(s.P10)
		out.P25 = InToMM(s.P25)
		out.P50 = InToMM(s.P50)
		out.P75 = InToMM(s.P75)
		out.P90 = InToMM(s.P90)
	case MPH:
		out.Unit = KMH
		out.Mean = MPHToKMH(s.Mean)
		out.Std = MPHToKMH(s.Std)
		out.P10 = MPHToKMH(s.P10)
		out.P25 = MPHToKMH(s.P25)
		out.P50 = MPHToKMH(s.P50)
		out.P75 = MPHToKMH(s.P75)
		out.P90 = MPHToKMH(s.P90)
	}
	return out
}

// unitForMetric maps a canonical variable name to its metric unit.
func unitForMetric(metric string) string {
	switch metric {
	case models.VarTempMean, models.VarTempMax, models.VarTempMin, models.VarHeatIndex:
		return Celsius
	case models.VarPrecip:
		return Millimeter
	case models.VarWind, models.VarWindGusts:
		return KMH
	case models.VarHumidity, models.VarCloud:
		return Percent
	default:
		return Index
	}
}

// ConvertResponse converts all unit-bearing fields of a metric response
// into the requested unit system, in place. Probabilities keep their
// percent values; only thresholds are converted.
func ConvertResponse(r *models.OutlookResponse, to models.Units) {
	r.Metadata.Units = to
	if to != models.UnitsImperial {
		return
	}
	for i, s := range r.Summary {
		r.Summary[i] = ConvertSummary(s, to)
	}
	for i, p := range r.Probabilities {
		r.Probabilities[i].Threshold = toImperial(unitForMetric(p.Metric), p.Threshold)
	}
}
