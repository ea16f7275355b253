package risk

import (
	"strings"
	"testing"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

func summary(variable string, mean float64, n int) models.VariableSummary {
	return models.VariableSummary{Variable: variable, Mean: mean, SampleSize: n}
}

func exceedance(metric string, pct float64) models.ExceedanceProbability {
	return models.ExceedanceProbability{Metric: metric, ProbabilityPercent: pct}
}

// baselineInputs returns a benign 15-day window: mild, calm, dry.
func baselineInputs() Inputs {
	return Inputs{
		Summaries: map[string]models.VariableSummary{
			models.VarTempMax:   summary(models.VarTempMax, 22, 15),
			models.VarTempMin:   summary(models.VarTempMin, 12, 15),
			models.VarWind:      summary(models.VarWind, 10, 15),
			models.VarWindGusts: {Variable: models.VarWindGusts, Mean: 20, P75: 25, P90: 32, SampleSize: 15},
			models.VarHumidity:  summary(models.VarHumidity, 50, 15),
		},
		Exceedances: map[string]models.ExceedanceProbability{
			models.VarTempMax:   exceedance(models.VarTempMax, 0),
			models.VarTempMin:   exceedance(models.VarTempMin, 100),
			models.VarWindGusts: exceedance(models.VarWindGusts, 20),
			models.VarPrecip:    exceedance(models.VarPrecip, 5),
			models.VarHeatIndex: exceedance(models.VarHeatIndex, 0),
		},
		Units: models.UnitsMetric,
	}
}

// TestClassify_FixedOrderAndShape verifies all five categories are always
// emitted in canonical order, even when nothing triggers.
func TestClassify_FixedOrderAndShape(t *testing.T) {
	labels, usedFallback := Classify(baselineInputs(), DefaultThresholds())
	if usedFallback {
		t.Error("usedFallback = true for a 15-day sample")
	}
	wantOrder := []models.RiskType{
		models.RiskVeryHot, models.RiskVeryCold, models.RiskVeryWindy,
		models.RiskVeryWet, models.RiskVeryUncomfortable,
	}
	if len(labels) != len(wantOrder) {
		t.Fatalf("len(labels) = %d, want %d", len(labels), len(wantOrder))
	}
	for i, want := range wantOrder {
		if labels[i].RiskType != want {
			t.Errorf("labels[%d].RiskType = %s, want %s", i, labels[i].RiskType, want)
		}
		if labels[i].Level != models.RiskLevelLow {
			t.Errorf("%s level = %s, want low in benign conditions", want, labels[i].Level)
		}
		if labels[i].ProbabilityPercent < 0 || labels[i].ProbabilityPercent > 100 {
			t.Errorf("%s probability %v outside [0, 100]", want, labels[i].ProbabilityPercent)
		}
		if labels[i].RuleApplied == "" {
			t.Errorf("%s has empty RuleApplied", want)
		}
	}
}

// TestClassify_VeryHotLevels verifies the heat breakpoints: medium at the
// base, high at base plus margin, with the empirical probability carried.
func TestClassify_VeryHotLevels(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		mean float64
		want models.RiskLevel
	}{
		{32.9, models.RiskLevelLow},
		{33, models.RiskLevelMedium},
		{37.9, models.RiskLevelMedium},
		{38, models.RiskLevelHigh},
	}
	for _, tt := range tests {
		in := baselineInputs()
		in.Summaries[models.VarTempMax] = summary(models.VarTempMax, tt.mean, 15)
		in.Exceedances[models.VarTempMax] = exceedance(models.VarTempMax, 40)
		labels, _ := Classify(in, th)
		hot := labels[0]
		if hot.Level != tt.want {
			t.Errorf("mean %v: level = %s, want %s", tt.mean, hot.Level, tt.want)
		}
		if hot.ProbabilityPercent != 40 {
			t.Errorf("mean %v: probability = %v, want empirical 40", tt.mean, hot.ProbabilityPercent)
		}
	}
}

// TestClassify_VeryColdUsesWindChill verifies cold escalation uses the wind
// chill of mean min and mean wind, and the complement probability.
func TestClassify_VeryColdUsesWindChill(t *testing.T) {
	in := baselineInputs()
	// -8C with 30 km/h wind chills to about -17C, past the -10C base.
	in.Summaries[models.VarTempMin] = summary(models.VarTempMin, -8, 15)
	in.Summaries[models.VarWind] = summary(models.VarWind, 30, 15)
	// 80% of days had min above the cold base -> cold probability is 20%.
	in.Exceedances[models.VarTempMin] = exceedance(models.VarTempMin, 80)

	labels, _ := Classify(in, DefaultThresholds())
	cold := labels[1]
	if cold.Level == models.RiskLevelLow {
		t.Errorf("level = low, want escalation from wind chill")
	}
	if cold.ProbabilityPercent != 20 {
		t.Errorf("probability = %v, want complement 20", cold.ProbabilityPercent)
	}
}

// TestClassify_VeryWindyRelativeThresholds verifies windy triggers on the
// window's own percentiles rather than a fixed speed.
func TestClassify_VeryWindyRelativeThresholds(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		mean, p75, p90 float64
		want           models.RiskLevel
	}{
		{20, 25, 32, models.RiskLevelLow},
		{26, 25, 32, models.RiskLevelMedium},
		{43, 25, 32, models.RiskLevelHigh}, // above p90 + 10 margin
	}
	for _, tt := range tests {
		in := baselineInputs()
		in.Summaries[models.VarWindGusts] = models.VariableSummary{
			Variable: models.VarWindGusts, Mean: tt.mean, P75: tt.p75, P90: tt.p90, SampleSize: 15,
		}
		labels, _ := Classify(in, th)
		if labels[2].Level != tt.want {
			t.Errorf("mean %v: level = %s, want %s", tt.mean, labels[2].Level, tt.want)
		}
	}
}

// TestClassify_VeryWindyFallsBackToWindSpeed verifies the classifier uses
// mean wind speed when no gust summary exists.
func TestClassify_VeryWindyFallsBackToWindSpeed(t *testing.T) {
	in := baselineInputs()
	delete(in.Summaries, models.VarWindGusts)
	in.Summaries[models.VarWind] = models.VariableSummary{
		Variable: models.VarWind, Mean: 30, P75: 22, P90: 28, SampleSize: 15,
	}
	in.Exceedances[models.VarWind] = exceedance(models.VarWind, 25)
	labels, _ := Classify(in, DefaultThresholds())
	windy := labels[2]
	if windy.Level != models.RiskLevelMedium {
		t.Errorf("level = %s, want medium from wind speed summary", windy.Level)
	}
	if !strings.Contains(windy.RuleApplied, models.VarWind) {
		t.Errorf("RuleApplied = %q, want mention of %s", windy.RuleApplied, models.VarWind)
	}
}

// TestClassify_VeryWetProbabilityIsExceedance verifies the wet label's
// probability equals the precipitation exceedance and sets the level.
func TestClassify_VeryWetProbabilityIsExceedance(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		pct  float64
		want models.RiskLevel
	}{
		{5, models.RiskLevelLow},
		{25, models.RiskLevelMedium},
		{50, models.RiskLevelHigh},
		{80, models.RiskLevelHigh},
	}
	for _, tt := range tests {
		in := baselineInputs()
		in.Exceedances[models.VarPrecip] = exceedance(models.VarPrecip, tt.pct)
		labels, _ := Classify(in, th)
		wet := labels[3]
		if wet.Level != tt.want {
			t.Errorf("pct %v: level = %s, want %s", tt.pct, wet.Level, tt.want)
		}
		if wet.ProbabilityPercent != tt.pct {
			t.Errorf("pct %v: probability = %v, want the exceedance itself", tt.pct, wet.ProbabilityPercent)
		}
	}
}

// TestClassify_VeryUncomfortableCompositeRule verifies discomfort requires
// both the heat and the dew point component.
func TestClassify_VeryUncomfortableCompositeRule(t *testing.T) {
	th := DefaultThresholds()

	// Hot and humid: 31C mean max with 75% humidity gives a ~26C dew point.
	in := baselineInputs()
	in.Summaries[models.VarTempMax] = summary(models.VarTempMax, 31, 15)
	in.Summaries[models.VarHumidity] = summary(models.VarHumidity, 75, 15)
	labels, _ := Classify(in, th)
	if labels[4].Level != models.RiskLevelHigh {
		t.Errorf("hot+humid level = %s, want high", labels[4].Level)
	}

	// Hot but dry: same heat, 20% humidity, dew point well below 21C.
	in = baselineInputs()
	in.Summaries[models.VarTempMax] = summary(models.VarTempMax, 31, 15)
	in.Summaries[models.VarHumidity] = summary(models.VarHumidity, 20, 15)
	labels, _ = Classify(in, th)
	if labels[4].Level != models.RiskLevelLow {
		t.Errorf("hot+dry level = %s, want low", labels[4].Level)
	}

	// Humid but mild: dew point high enough but no heat component.
	in = baselineInputs()
	in.Summaries[models.VarTempMax] = summary(models.VarTempMax, 24, 15)
	in.Summaries[models.VarHumidity] = summary(models.VarHumidity, 95, 15)
	labels, _ = Classify(in, th)
	if labels[4].Level != models.RiskLevelLow {
		t.Errorf("mild+humid level = %s, want low", labels[4].Level)
	}
}

// TestClassify_SmallSampleFallback verifies samples below the empirical
// minimum get the configured confidence values and report the fallback.
func TestClassify_SmallSampleFallback(t *testing.T) {
	th := DefaultThresholds()
	in := baselineInputs()
	for name, s := range in.Summaries {
		s.SampleSize = 2
		in.Summaries[name] = s
	}
	in.Summaries[models.VarTempMax] = models.VariableSummary{
		Variable: models.VarTempMax, Mean: 34, SampleSize: 2,
	}

	labels, usedFallback := Classify(in, th)
	if !usedFallback {
		t.Fatal("usedFallback = false, want true for 2-day sample")
	}
	hot := labels[0]
	if hot.Level != models.RiskLevelMedium {
		t.Errorf("hot level = %s, want medium", hot.Level)
	}
	if hot.ProbabilityPercent != th.FallbackMediumPct {
		t.Errorf("hot probability = %v, want fallback %v", hot.ProbabilityPercent, th.FallbackMediumPct)
	}
	if !strings.Contains(hot.RuleApplied, "assumed confidence") {
		t.Errorf("RuleApplied = %q, want assumed-confidence note", hot.RuleApplied)
	}
}

// TestClassify_MissingVariables verifies absent summaries degrade to low
// labels with an explanatory rule instead of panicking.
func TestClassify_MissingVariables(t *testing.T) {
	labels, _ := Classify(Inputs{Units: models.UnitsMetric}, DefaultThresholds())
	if len(labels) != 5 {
		t.Fatalf("len(labels) = %d, want 5", len(labels))
	}
	for _, l := range labels {
		if l.Level != models.RiskLevelLow {
			t.Errorf("%s level = %s, want low with no data", l.RiskType, l.Level)
		}
		if l.RuleApplied == "" {
			t.Errorf("%s has empty RuleApplied", l.RiskType)
		}
	}
}

// TestClassify_ImperialRuleFormatting verifies rule explanations format in
// the requested unit system.
func TestClassify_ImperialRuleFormatting(t *testing.T) {
	in := baselineInputs()
	in.Units = models.UnitsImperial
	labels, _ := Classify(in, DefaultThresholds())
	if !strings.Contains(labels[0].RuleApplied, "°F") {
		t.Errorf("hot rule = %q, want Fahrenheit formatting", labels[0].RuleApplied)
	}
	if !strings.Contains(labels[2].RuleApplied, "mph") {
		t.Errorf("windy rule = %q, want mph formatting", labels[2].RuleApplied)
	}
}
