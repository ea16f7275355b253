package models

import "time"

// Units selects the measurement system for request input and response output.
// All internal computation is metric; conversion happens at the edges.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is a supported unit system.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// RiskType identifies one of the five canonical outlook risk categories.
type RiskType string

const (
	RiskVeryHot           RiskType = "very_hot"
	RiskVeryCold          RiskType = "very_cold"
	RiskVeryWindy         RiskType = "very_windy"
	RiskVeryWet           RiskType = "very_wet"
	RiskVeryUncomfortable RiskType = "very_uncomfortable"
)

// RiskLevel is the discrete severity of a risk category.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// RawObservation is one instantaneous measurement from the upstream data
// provider. Optional fields are nil when the provider reported no value;
// the aggregator excludes nil samples rather than zero-filling them.
type RawObservation struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   *float64  `json:"temperature"`   // °C
	Precipitation *float64  `json:"precipitation"` // mm
	Rain          *float64  `json:"rain"`          // mm
	Snow          *float64  `json:"snow"`          // mm (water equivalent)
	WindSpeed     *float64  `json:"windSpeed"`     // km/h at 10m
	WindGusts     *float64  `json:"windGusts"`     // km/h
	CloudCover    *float64  `json:"cloudCover"`    // %
	Humidity      *float64  `json:"humidity"`      // % relative
	UVIndex       *float64  `json:"uvIndex"`
}

// SunWindow is the sunrise/sunset boundary for one calendar day. The
// aggregator falls back to a fixed 06:00-18:00 boundary when a day's
// SunWindow is absent or violates sunrise < sunset.
type SunWindow struct {
	Date    time.Time `json:"date"`
	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`
}

// DailyMetrics is the per-day reduction of raw observations. Computed once
// per calendar day in the sampling window and never mutated afterwards.
type DailyMetrics struct {
	Day              time.Time `json:"day"`
	TempMin          float64   `json:"tempMin"`
	TempMax          float64   `json:"tempMax"`
	DayMeanTemp      float64   `json:"dayMeanTemp"`
	NightMeanTemp    float64   `json:"nightMeanTemp"`
	PrecipitationSum float64   `json:"precipitationSum"`
	RainSum          float64   `json:"rainSum"`
	SnowSum          float64   `json:"snowSum"`
	WindSpeedMean    float64   `json:"windSpeedMean"`
	WindGustsMax     float64   `json:"windGustsMax"`
	CloudCoverMean   float64   `json:"cloudCoverMean"`
	HumidityMean     float64   `json:"humidityMean"`
	UVIndexMax       float64   `json:"uvIndexMax"`
}

// Canonical variable names used in VariableSummary and ExceedanceProbability.
const (
	VarTempMean  = "t_mean"
	VarTempMax   = "t_max"
	VarTempMin   = "t_min"
	VarPrecip    = "precip_mm"
	VarWind      = "wind10m"
	VarWindGusts = "wind_gusts"
	VarHumidity  = "humidity_pct"
	VarCloud     = "cloud_pct"
	VarUVIndex   = "uv_index"
	VarHeatIndex = "heat_index"
)

// VariableSummary is the distribution summary of one variable across the
// sampled days. Percentiles are monotonically non-decreasing and Std >= 0.
type VariableSummary struct {
	Variable   string  `json:"variable"`
	Unit       string  `json:"unit"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	P10        float64 `json:"p10"`
	P25        float64 `json:"p25"`
	P50        float64 `json:"p50"`
	P75        float64 `json:"p75"`
	P90        float64 `json:"p90"`
	SampleSize int     `json:"sampleSize"`
}

// ExceedanceProbability is the empirical fraction of sampled days where
// a variable crossed a threshold, expressed 0-100.
type ExceedanceProbability struct {
	Metric             string  `json:"metric"`
	Threshold          float64 `json:"threshold"`
	Comparator         string  `json:"comparator"` // ">=" or ">"
	ProbabilityPercent float64 `json:"probabilityPercent"`
}

// RiskLabel is one classified risk category with its severity, empirical
// probability, and a human-readable explanation of the rule that fired.
type RiskLabel struct {
	RiskType           RiskType  `json:"riskType"`
	Level              RiskLevel `json:"level"`
	ProbabilityPercent float64   `json:"probabilityPercent"`
	RuleApplied        string    `json:"ruleApplied"`
}

// OutlookRequest are the caller-supplied parameters for one outlook.
type OutlookRequest struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	TargetDate string  `json:"targetDate"` // YYYY-MM-DD
	WindowDays int     `json:"windowDays"`
	Units      Units   `json:"units"`
}

// OutlookMetadata describes how the outlook was computed.
type OutlookMetadata struct {
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	TargetDate          string    `json:"targetDate"`
	WindowDays          int       `json:"windowDays"`
	Units               Units     `json:"units"`
	WindowStart         string    `json:"windowStart"`
	WindowEnd           string    `json:"windowEnd"`
	UsesHistoricalYears bool      `json:"usesHistoricalYears"`
	UsesExtrapolation   bool      `json:"usesExtrapolation"`
	SampledDays         int       `json:"sampledDays"`
	SkippedDays         int       `json:"skippedDays"`
	GeneratedAt         time.Time `json:"generatedAt"`
}

// OutlookResponse is the aggregate result of one outlook computation.
// Immutable once returned; safe to cache and replay.
type OutlookResponse struct {
	Metadata      OutlookMetadata         `json:"metadata"`
	Summary       []VariableSummary       `json:"summary"`
	Probabilities []ExceedanceProbability `json:"probabilities"`
	RiskLabels    []RiskLabel             `json:"riskLabels"`
}
