package risk

import (
	"fmt"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/units"
)

// Thresholds parameterize the risk rules. All values are metric; output
// formatting converts to the requested unit system. Loaded from config so
// deployments can tune breakpoints without touching the rule table.
type Thresholds struct {
	HeatBaseC       float64 // very_hot triggers at mean daily max >= this
	HeatHighMarginC float64 // high when margin above base reaches this

	ColdBaseC       float64 // very_cold triggers at wind chill <= this
	ColdHighMarginC float64 // high when this far below base

	WindHighMarginKMH float64 // high when mean wind sits this far above p90

	WetDailyMM   float64 // very_wet daily precipitation threshold
	WetMediumPct float64 // exceedance percent for medium
	WetHighPct   float64 // exceedance percent for high

	DiscomfortHeatC         float64 // heat component of very_uncomfortable
	DiscomfortDewPointC     float64 // dew point for medium
	DiscomfortHighDewPointC float64 // dew point for high

	// MinSampleForEmpirical is the smallest window for which exceedance
	// probabilities are trusted; below it the fixed confidence fallback
	// applies and the response is tagged as extrapolated.
	MinSampleForEmpirical int
	FallbackLowPct        float64
	FallbackMediumPct     float64
	FallbackHighPct       float64
}

// DefaultThresholds returns the canonical rule breakpoints.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeatBaseC:               33,
		HeatHighMarginC:         5,
		ColdBaseC:               -10,
		ColdHighMarginC:         8,
		WindHighMarginKMH:       10,
		WetDailyMM:              10,
		WetMediumPct:            25,
		WetHighPct:              50,
		DiscomfortHeatC:         28,
		DiscomfortDewPointC:     21,
		DiscomfortHighDewPointC: 24,
		MinSampleForEmpirical:   5,
		FallbackLowPct:          15,
		FallbackMediumPct:       75,
		FallbackHighPct:         85,
	}
}

// Inputs carries the window's distribution summaries and precomputed
// exceedance probabilities, both keyed by canonical variable name and
// always in metric units. Units controls rule-explanation formatting only.
type Inputs struct {
	Summaries   map[string]models.VariableSummary
	Exceedances map[string]models.ExceedanceProbability
	Units       models.Units
}

// Classify maps the window's statistics to the five canonical risk labels,
// always emitted in fixed order: very_hot, very_cold, very_windy, very_wet,
// very_uncomfortable. Categories that did not trigger are reported at level
// low rather than omitted, so callers get a deterministic shape.
//
// Probabilities are the empirical exceedance fractions from Inputs; the
// fixed confidence fallback is used only when the sample is smaller than
// Thresholds.MinSampleForEmpirical, and the second return value reports
// whether any label had to fall back.
func Classify(in Inputs, th Thresholds) ([]models.RiskLabel, bool) {
	c := classifier{in: in, th: th}
	labels := []models.RiskLabel{
		c.veryHot(),
		c.veryCold(),
		c.veryWindy(),
		c.veryWet(),
		c.veryUncomfortable(),
	}
	for i := range labels {
		labels[i].ProbabilityPercent = clampPct(labels[i].ProbabilityPercent)
	}
	return labels, c.usedFallback
}

type classifier struct {
	in           Inputs
	th           Thresholds
	usedFallback bool
}

func (c *classifier) veryHot() models.RiskLabel {
	s, ok := c.in.Summaries[models.VarTempMax]
	if !ok {
		return missingLabel(models.RiskVeryHot, "no daily max temperature data")
	}

	level := models.RiskLevelLow
	switch {
	case s.Mean >= c.th.HeatBaseC+c.th.HeatHighMarginC:
		level = models.RiskLevelHigh
	case s.Mean >= c.th.HeatBaseC:
		level = models.RiskLevelMedium
	}

	prob, empirical := c.probability(models.VarTempMax, s.SampleSize, level)

	rule := fmt.Sprintf("mean daily max %s vs %s heat threshold; share of days at or above threshold: %.1f%%",
		c.fmtTemp(s.Mean), c.fmtTemp(c.th.HeatBaseC), prob)
	if !empirical {
		rule += " (assumed confidence: sample too small for empirical estimate)"
	}
	return models.RiskLabel{RiskType: models.RiskVeryHot, Level: level, ProbabilityPercent: prob, RuleApplied: rule}
}

func (c *classifier) veryCold() models.RiskLabel {
	s, ok := c.in.Summaries[models.VarTempMin]
	if !ok {
		return missingLabel(models.RiskVeryCold, "no daily min temperature data")
	}

	// Wind chill shifts perceived cold; use the mean wind across the window.
	windMean := 0.0
	if w, ok := c.in.Summaries[models.VarWind]; ok {
		windMean = w.Mean
	}
	chill := WindChill(s.Mean, windMean)

	level := models.RiskLevelLow
	switch {
	case chill <= c.th.ColdBaseC-c.th.ColdHighMarginC:
		level = models.RiskLevelHigh
	case chill <= c.th.ColdBaseC:
		level = models.RiskLevelMedium
	}

	// The stored exceedance counts days with min above the cold threshold;
	// the cold probability is its complement.
	prob := c.fallbackPct(level)
	empirical := false
	if ex, ok := c.in.Exceedances[models.VarTempMin]; ok && s.SampleSize >= c.th.MinSampleForEmpirical {
		prob = 100 - ex.ProbabilityPercent
		empirical = true
	}
	if !empirical {
		c.usedFallback = true
	}

	rule := fmt.Sprintf("wind chill %s from mean daily min %s and mean wind %s vs %s cold threshold; share of days at or below threshold: %.1f%%",
		c.fmtTemp(chill), c.fmtTemp(s.Mean), c.fmtWind(windMean), c.fmtTemp(c.th.ColdBaseC), prob)
	if !empirical {
		rule += " (assumed confidence: sample too small for empirical estimate)"
	}
	return models.RiskLabel{RiskType: models.RiskVeryCold, Level: level, ProbabilityPercent: prob, RuleApplied: rule}
}

func (c *classifier) veryWindy() models.RiskLabel {
	metric := models.VarWindGusts
	s, ok := c.in.Summaries[metric]
	if !ok || s.SampleSize == 0 {
		metric = models.VarWind
		s, ok = c.in.Summaries[metric]
		if !ok {
			return missingLabel(models.RiskVeryWindy, "no wind data")
		}
	}

	// Threshold derived from the window's own distribution: trigger above
	// the 75th percentile, escalate by distance above the 90th.
	level := models.RiskLevelLow
	switch {
	case s.Mean > s.P90+c.th.WindHighMarginKMH:
		level = models.RiskLevelHigh
	case s.Mean > s.P75:
		level = models.RiskLevelMedium
	}

	prob, empirical := c.probability(metric, s.SampleSize, level)

	rule := fmt.Sprintf("mean %s %s vs p75 %s / p90 %s; share of days above p75: %.1f%%",
		metric, c.fmtWind(s.Mean), c.fmtWind(s.P75), c.fmtWind(s.P90), prob)
	if !empirical {
		rule += " (assumed confidence: sample too small for empirical estimate)"
	}
	return models.RiskLabel{RiskType: models.RiskVeryWindy, Level: level, ProbabilityPercent: prob, RuleApplied: rule}
}

func (c *classifier) veryWet() models.RiskLabel {
	ex, ok := c.in.Exceedances[models.VarPrecip]
	if !ok {
		return missingLabel(models.RiskVeryWet, "no precipitation data")
	}

	// Wet probability is the exceedance itself, never a constant: the
	// empirical share of sampled days reaching the daily threshold.
	prob := ex.ProbabilityPercent
	level := models.RiskLevelLow
	switch {
	case prob >= c.th.WetHighPct:
		level = models.RiskLevelHigh
	case prob >= c.th.WetMediumPct:
		level = models.RiskLevelMedium
	}

	rule := fmt.Sprintf("%.1f%% of sampled days reached %s daily precipitation",
		prob, c.fmtPrecip(c.th.WetDailyMM))
	return models.RiskLabel{RiskType: models.RiskVeryWet, Level: level, ProbabilityPercent: prob, RuleApplied: rule}
}

func (c *classifier) veryUncomfortable() models.RiskLabel {
	tmax, okT := c.in.Summaries[models.VarTempMax]
	hum, okH := c.in.Summaries[models.VarHumidity]
	if !okT || !okH {
		return missingLabel(models.RiskVeryUncomfortable, "discomfort requires temperature and humidity data")
	}

	// Composite rule: both the heat component and the moisture component
	// must hold. Dew point combines the two summaries.
	dew := DewPoint(tmax.Mean, hum.Mean)
	hot := tmax.Mean >= c.th.DiscomfortHeatC

	level := models.RiskLevelLow
	switch {
	case hot && dew >= c.th.DiscomfortHighDewPointC:
		level = models.RiskLevelHigh
	case hot && dew >= c.th.DiscomfortDewPointC:
		level = models.RiskLevelMedium
	}

	prob, empirical := c.probability(models.VarHeatIndex, tmax.SampleSize, level)

	rule := fmt.Sprintf("dew point %s from mean daily max %s and mean humidity %.0f%%; heat component %s threshold %s; share of days with heat index at or above %s: %.1f%%",
		c.fmtTemp(dew), c.fmtTemp(tmax.Mean), hum.Mean, boolWord(hot), c.fmtTemp(c.th.DiscomfortHeatC), c.fmtTemp(c.th.DiscomfortHeatC), prob)
	if !empirical {
		rule += " (assumed confidence: sample too small for empirical estimate)"
	}
	return models.RiskLabel{RiskType: models.RiskVeryUncomfortable, Level: level, ProbabilityPercent: prob, RuleApplied: rule}
}

// probability resolves the label probability for a metric: the empirical
// exceedance when available and the sample is large enough, otherwise the
// configured fixed confidence for the level.
func (c *classifier) probability(metric string, sampleSize int, level models.RiskLevel) (pct float64, empirical bool) {
	if ex, ok := c.in.Exceedances[metric]; ok && sampleSize >= c.th.MinSampleForEmpirical {
		return ex.ProbabilityPercent, true
	}
	c.usedFallback = true
	return c.fallbackPct(level), false
}

func (c *classifier) fallbackPct(level models.RiskLevel) float64 {
	switch level {
	case models.RiskLevelHigh:
		return c.th.FallbackHighPct
	case models.RiskLevelMedium:
		return c.th.FallbackMediumPct
	default:
		return c.th.FallbackLowPct
	}
}

func (c *classifier) fmtTemp(v float64) string {
	if c.in.Units == models.UnitsImperial {
		return fmt.Sprintf("%.1f°F", units.CToF(v))
	}
	return fmt.Sprintf("%.1f°C", v)
}

func (c *classifier) fmtWind(v float64) string {
	if c.in.Units == models.UnitsImperial {
		return fmt.Sprintf("%.1f mph", units.KMHToMPH(v))
	}
	return fmt.Sprintf("%.1f km/h", v)
}

func (c *classifier) fmtPrecip(v float64) string {
	if c.in.Units == models.UnitsImperial {
		return fmt.Sprintf("%.2f in", units.MMToIn(v))
	}
	return fmt.Sprintf("%.1f mm", v)
}

func missingLabel(rt models.RiskType, why string) models.RiskLabel {
	return models.RiskLabel{
		RiskType:           rt,
		Level:              models.RiskLevelLow,
		ProbabilityPercent: 0,
		RuleApplied:        why,
	}
}

func boolWord(b bool) string {
	if b {
		return "above"
	}
	return "below"
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
