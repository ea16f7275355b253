package window

import (
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/outlookerr"
)

// Availability describes what date ranges the data provider can serve.
// ForecastHorizonDays is how far past "today" the live forecast endpoint
// reaches; ArchiveStart/ArchiveEnd bound the historical archive.
type Availability struct {
	ForecastHorizonDays int
	ArchiveStart        time.Time
	ArchiveEnd          time.Time
}

// Window is the resolved set of calendar days to aggregate for one outlook.
// Start and End are inclusive. UsesHistoricalYears is true when the window
// was anchored to the target's day-of-year in a prior year rather than a
// forward run of forecast days.
type Window struct {
	Start               time.Time
	End                 time.Time
	UsesHistoricalYears bool
}

// Days returns the number of calendar days in the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// SelectWindow determines the sampling window for targetDate.
//
// Targets within the provider's forecast horizon get a contiguous forward
// window of windowDays consecutive days starting at the target, sourced
// from live forecast data. Anything else is served from the archive: the
// same day-of-year in the nearest archive year, widened by
// ±floor(windowDays/2) days.
//
// When the day-of-year anchor lands outside archive coverage it is clamped
// by shifting whole years while keeping the target's month and day, not by
// linearly clamping to the boundary date.
//
// today is the injected clock's current date; no ambient time is read.
// Fails with DataUnavailable when the archive has no usable coverage.
func SelectWindow(today, targetDate time.Time, windowDays int, avail Availability) (Window, error) {
	today = truncateDay(today)
	target := truncateDay(targetDate)

	horizon := today.AddDate(0, 0, avail.ForecastHorizonDays)
	if !target.Before(today) && !target.After(horizon) {
		return Window{
			Start: target,
			End:   target.AddDate(0, 0, windowDays-1),
		}, nil
	}

	if avail.ArchiveStart.IsZero() || avail.ArchiveEnd.Before(avail.ArchiveStart) {
		return Window{}, outlookerr.New(outlookerr.KindDataUnavailable, "historical archive has no coverage")
	}
	archiveStart := truncateDay(avail.ArchiveStart)
	archiveEnd := truncateDay(avail.ArchiveEnd)

	anchor, err := anchorInArchive(target, archiveStart, archiveEnd)
	if err != nil {
		return Window{}, err
	}

	half := windowDays / 2
	start := anchor.AddDate(0, 0, -half)
	end := anchor.AddDate(0, 0, half)
	if start.Before(archiveStart) {
		start = archiveStart
	}
	if end.After(archiveEnd) {
		end = archiveEnd
	}
	if start.After(end) {
		return Window{}, outlookerr.Newf(outlookerr.KindDataUnavailable, "no archive days available around %s", anchor.Format("2006-01-02"))
	}

	return Window{Start: start, End: end, UsesHistoricalYears: true}, nil
}

// anchorInArchive places the target's month/day in the most recent archive
// year that contains it, shifting whole years when the candidate falls
// outside coverage. Feb 29 normalizes to Mar 1 in non-leap years.
func anchorInArchive(target, archiveStart, archiveEnd time.Time) (time.Time, error) {
	year := target.Year()
	if sameDayOfYear(target, year).After(archiveEnd) {
		year = archiveEnd.Year()
		if sameDayOfYear(target, year).After(archiveEnd) {
			year--
		}
	}
	anchor := sameDayOfYear(target, year)
	if anchor.Before(archiveStart) {
		year = archiveStart.Year()
		anchor = sameDayOfYear(target, year)
		if anchor.Before(archiveStart) {
			anchor = sameDayOfYear(target, year+1)
		}
	}
	if anchor.Before(archiveStart) || anchor.After(archiveEnd) {
		return time.Time{}, outlookerr.Newf(outlookerr.KindDataUnavailable, "no archive year covers day-of-year of %s", target.Format("2006-01-02"))
	}
	return anchor, nil
}

// sameDayOfYear rebuilds the target's month/day in the given year.
func sameDayOfYear(target time.Time, year int) time.Time {
	return time.Date(year, target.Month(), target.Day(), 0, 0, 0, 0, target.Location())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
