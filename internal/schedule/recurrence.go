package schedule

import (
	"time"
)

// Recurrence is the calendar pattern by which a recurring schedule re-arms
// itself after firing.
type Recurrence string

const (
	Daily    Recurrence = "DAILY"
	Weekly   Recurrence = "WEEKLY"
	Monthly  Recurrence = "MONTHLY"
	Seasonal Recurrence = "SEASONAL"
)

// NextRun computes the next run time after an execution attempt at "now".
//
// MONTHLY clamps to the last valid day of the target month, so a schedule
// created on Jan 31 fires on Feb 28 (or 29) and then Mar 28 onward.
func (r Recurrence) NextRun(now time.Time) time.Time {
	switch r {
	case Daily:
		return now.Add(24 * time.Hour)
	case Weekly:
		return now.Add(7 * 24 * time.Hour)
	case Monthly:
		return nextMonth(now)
	case Seasonal:
		return NextSeasonStart(now)
	}
	return now.Add(24 * time.Hour)
}

func nextMonth(now time.Time) time.Time {
	year, month, day := now.Date()
	hour, min, sec := now.Clock()

	// First day of the month after next, minus a day, is the last valid
	// day of the target month.
	firstOfTarget := time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, 0, now.Location())
}

// NextSeasonStart returns the next quarter boundary among Mar 1, Jun 1,
// Sep 1 and Dec 1, strictly after now, wrapping to next year past Dec 1.
func NextSeasonStart(now time.Time) time.Time {
	for _, month := range []time.Month{time.March, time.June, time.September, time.December} {
		boundary := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
		if boundary.After(now) {
			return boundary
		}
	}
	return time.Date(now.Year()+1, time.March, 1, 0, 0, 0, 0, now.Location())
}

// NextOccurrence returns the next daily occurrence of hour:minute, rolled
// to tomorrow if that time has already passed today.
func NextOccurrence(hour, minute int) time.Time {
	return nextOccurrenceAfter(time.Now(), hour, minute)
}

func nextOccurrenceAfter(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// NextWeekday returns the next occurrence of the given weekday at
// hour:minute, strictly in the future. When today is the target weekday and
// the time has not yet passed, today's occurrence is returned.
func NextWeekday(weekday time.Weekday, hour, minute int) time.Time {
	return nextWeekdayAfter(time.Now(), weekday, hour, minute)
}

func nextWeekdayAfter(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	t = t.AddDate(0, 0, days)
	if !t.After(now) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}
