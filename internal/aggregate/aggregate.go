package aggregate

import (
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
)

// Fixed day/night boundary applied when a day's SunWindow is absent or
// violates sunrise < sunset.
const (
	fallbackSunriseHour = 6.0
	fallbackSunsetHour  = 18.0
)

// dayBounds resolves the day-bucket boundary for one calendar day. This is
// the single seam where the sunrise/sunset fallback applies: a nil window
// or one with sunrise >= sunset yields the fixed 06:00-18:00 boundary.
func dayBounds(sun *models.SunWindow) (sunriseHour, sunsetHour float64) {
	if sun == nil || !sun.Sunrise.Before(sun.Sunset) {
		return fallbackSunriseHour, fallbackSunsetHour
	}
	return hourOfDay(sun.Sunrise), hourOfDay(sun.Sunset)
}

// hourOfDay returns the local hour including fractional minutes and seconds.
func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// AggregateDay reduces one calendar day's raw observations into
// DailyMetrics. The caller supplies all observations whose timestamp falls
// within the local day; sun may be nil.
//
// Temperature min/max span every sample in the day. An observation belongs
// to the day bucket when its local hour falls in [sunrise, sunset),
// otherwise the night bucket. When a bucket has zero samples its mean falls
// back to TempMax (day) or TempMin (night); this avoids NaN propagation and
// is a documented design choice, not a statistical estimate.
//
// Observations missing an optional field are excluded from that field's
// mean denominator rather than zero-filled. Sum fields treat missing
// values as zero contribution.
//
// Returns InsufficientData when the day has no temperature samples; the
// caller must skip the day rather than fabricate metrics.
func AggregateDay(day time.Time, observations []models.RawObservation, sun *models.SunWindow) (models.DailyMetrics, error) {
	if len(observations) == 0 {
		return models.DailyMetrics{}, outlookerr.Newf(outlookerr.KindInsufficientData, "no observations for %s", day.Format("2006-01-02"))
	}

	sunriseHour, sunsetHour := dayBounds(sun)

	var (
		tempMin, tempMax     float64
		haveTemp             bool
		daySum, nightSum     float64
		dayCount, nightCount int
		precipSum, rainSum   float64
		snowSum              float64
		windSum              float64
		windCount            int
		gustsMax             float64
		cloudSum             float64
		cloudCount           int
		humiditySum          float64
		humidityCount        int
		uvMax                float64
	)

	for _, obs := range observations {
		if obs.Temperature != nil {
			t := *obs.Temperature
			if !haveTemp || t < tempMin {
				tempMin = t
			}
			if !haveTemp || t > tempMax {
				tempMax = t
			}
			haveTemp = true

			h := hourOfDay(obs.Timestamp)
			if h >= sunriseHour && h < sunsetHour {
				daySum += t
				dayCount++
			} else {
				nightSum += t
				nightCount++
			}
		}
		if obs.Precipitation != nil {
			precipSum += *obs.Precipitation
		}
		if obs.Rain != nil {
			rainSum += *obs.Rain
		}
		if obs.Snow != nil {
			snowSum += *obs.Snow
		}
		if obs.WindSpeed != nil {
			windSum += *obs.WindSpeed
			windCount++
		}
		if obs.WindGusts != nil && *obs.WindGusts > gustsMax {
			gustsMax = *obs.WindGusts
		}
		if obs.CloudCover != nil {
			cloudSum += *obs.CloudCover
			cloudCount++
		}
		if obs.Humidity != nil {
			humiditySum += *obs.Humidity
			humidityCount++
		}
		if obs.UVIndex != nil && *obs.UVIndex > uvMax {
			uvMax = *obs.UVIndex
		}
	}

	if !haveTemp {
		return models.DailyMetrics{}, outlookerr.Newf(outlookerr.KindInsufficientData, "no temperature samples for %s", day.Format("2006-01-02"))
	}

	dayMean := tempMax // fallback when all samples fell outside daylight
	if dayCount > 0 {
		dayMean = daySum / float64(dayCount)
	}
	nightMean := tempMin
	if nightCount > 0 {
		nightMean = nightSum / float64(nightCount)
	}

	m := models.DailyMetrics{
		Day:              day,
		TempMin:          tempMin,
		TempMax:          tempMax,
		DayMeanTemp:      dayMean,
		NightMeanTemp:    nightMean,
		PrecipitationSum: precipSum,
		RainSum:          rainSum,
		SnowSum:          snowSum,
		WindGustsMax:     gustsMax,
		UVIndexMax:       uvMax,
	}
	if windCount > 0 {
		m.WindSpeedMean = windSum / float64(windCount)
	}
	if cloudCount > 0 {
		m.CloudCoverMean = cloudSum / float64(cloudCount)
	}
	if humidityCount > 0 {
		m.HumidityMean = humiditySum / float64(humidityCount)
	}
	return m, nil
}
