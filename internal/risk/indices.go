package risk

import "math"

// Standard meteorological composite indices. Inputs are metric: °C for
// temperature, % for relative humidity, km/h for wind speed.

// DewPoint approximates the dew point via the Magnus formula.
// Humidity below 1% is floored to keep the logarithm defined.
func DewPoint(tempC, humidityPct float64) float64 {
	const a, b = 17.625, 243.04
	if humidityPct < 1 {
		humidityPct = 1
	}
	gamma := math.Log(humidityPct/100) + a*tempC/(b+tempC)
	return b * gamma / (a - gamma)
}

// HeatIndex computes the apparent temperature from air temperature and
// relative humidity using the Rothfusz regression (computed in °F,
// returned in °C). Below 27°C the index is the air temperature itself.
func HeatIndex(tempC, humidityPct float64) float64 {
	if tempC < 27 {
		return tempC
	}
	t := tempC*9/5 + 32
	rh := humidityPct
	hi := -42.379 + 2.04901523*t + 10.14333127*rh -
		0.22475541*t*rh - 0.00683783*t*t - 0.05481717*rh*rh +
		0.00122874*t*t*rh + 0.00085282*t*rh*rh - 0.00000199*t*t*rh*rh
	return (hi - 32) * 5 / 9
}

// WindChill computes the perceived temperature from air temperature and
// wind speed using the Environment Canada formula. Valid for temperatures
// at or below 10°C and wind above 4.8 km/h; otherwise returns the air
// temperature unchanged.
func WindChill(tempC, windKMH float64) float64 {
	if tempC > 10 || windKMH <= 4.8 {
		return tempC
	}
	v := math.Pow(windKMH, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*v + 0.3965*tempC*v
}
