package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

func testKey() Key {
	return Key{Lat: 47.6062, Lon: -122.3321, TargetDate: "2026-09-10", WindowDays: 7, Units: models.UnitsMetric}
}

func testResponse() models.OutlookResponse {
	return models.OutlookResponse{
		Metadata: models.OutlookMetadata{
			Lat: 47.6062, Lon: -122.3321, TargetDate: "2026-09-10",
			WindowDays: 7, Units: models.UnitsMetric, SampledDays: 7,
		},
		Summary: []models.VariableSummary{
			{Variable: models.VarTempMax, Unit: "celsius", Mean: 31.5, SampleSize: 7},
		},
		RiskLabels: []models.RiskLabel{
			{RiskType: models.RiskVeryHot, Level: models.RiskLevelMedium, ProbabilityPercent: 40},
		},
	}
}

// TestKey_String verifies the rendered key rounds coordinates to 4 decimals
// so jittery client coordinates collapse onto one entry.
func TestKey_String(t *testing.T) {
	k := Key{Lat: 47.60621844, Lon: -122.33214, TargetDate: "2026-09-10", WindowDays: 7, Units: models.UnitsImperial}
	want := "outlook:47.6062:-122.3321:2026-09-10:7:imperial"
	if got := k.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	jittered := Key{Lat: 47.60618, Lon: -122.33213, TargetDate: "2026-09-10", WindowDays: 7, Units: models.UnitsImperial}
	if jittered.String() != k.String() {
		t.Errorf("nearby coordinates produced distinct keys: %q vs %q", jittered.String(), k.String())
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := testResponse()
	if err := c.Set(ctx, testKey(), val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Metadata.TargetDate != val.Metadata.TargetDate || len(got.Summary) != 1 {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false for
// expired entries and removes them from cache on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, testKey(), testResponse(), 1*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, testKey())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false after expiry")
	}
}

// TestInMemoryCache_Set_Overwrites verifies last-writer-wins semantics for
// the same key.
func TestInMemoryCache_Set_Overwrites(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	first := testResponse()
	second := testResponse()
	second.Metadata.SampledDays = 14

	if err := c.Set(ctx, testKey(), first, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, testKey(), second, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, testKey())
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if got.Metadata.SampledDays != 14 {
		t.Errorf("SampledDays = %d, want overwritten 14", got.Metadata.SampledDays)
	}
}

// TestInMemoryCache_DistinctKeys verifies that keys differing in any field
// are independent entries.
func TestInMemoryCache_DistinctKeys(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	metricKey := testKey()
	imperialKey := testKey()
	imperialKey.Units = models.UnitsImperial

	if err := c.Set(ctx, metricKey, testResponse(), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_, ok, err := c.Get(ctx, imperialKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit across unit systems, want miss")
	}
}
