package validation

import (
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
)

// DateLayout is the accepted target date format.
const DateLayout = "2006-01-02"

// Limits bound the accepted request parameters. WindowDays bounds come
// from configuration; MaxFutureDays bounds how far ahead a target date may
// lie (the archive anchoring makes anything further meaningless).
type Limits struct {
	MinWindowDays int
	MaxWindowDays int
	MaxFutureDays int
}

// DefaultLimits returns the standard request bounds.
func DefaultLimits() Limits {
	return Limits{MinWindowDays: 1, MaxWindowDays: 30, MaxFutureDays: 366}
}

// ValidateRequest checks an outlook request against the limits and returns
// the parsed target date. Every violation is an InvalidParameter error;
// out-of-range window sizes fail rather than silently clamping.
// today is the injected clock's current date.
func ValidateRequest(req models.OutlookRequest, limits Limits, today time.Time) (time.Time, error) {
	if req.Lat < -90 || req.Lat > 90 {
		return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "lat %.4f outside [-90, 90]", req.Lat)
	}
	if req.Lon < -180 || req.Lon > 180 {
		return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "lon %.4f outside [-180, 180]", req.Lon)
	}
	if req.WindowDays < limits.MinWindowDays || req.WindowDays > limits.MaxWindowDays {
		return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "windowDays %d outside [%d, %d]", req.WindowDays, limits.MinWindowDays, limits.MaxWindowDays)
	}
	if !req.Units.Valid() {
		return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "units %q must be metric or imperial", req.Units)
	}

	target, err := time.Parse(DateLayout, req.TargetDate)
	if err != nil {
		return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "targetDate %q is not a valid YYYY-MM-DD date", req.TargetDate)
	}

	if limits.MaxFutureDays > 0 {
		latest := today.AddDate(0, 0, limits.MaxFutureDays)
		if target.After(latest) {
			return time.Time{}, outlookerr.Newf(outlookerr.KindInvalidParameter, "targetDate %s more than %d days ahead", req.TargetDate, limits.MaxFutureDays)
		}
	}

	return target, nil
}
