// Package dst implements the EU daylight-saving window: DST runs from the
// last Sunday of March to the last Sunday of October.
//
// Two predicates exist because the RTC may hold either UTC or local time.
// Their boundary hours differ on purpose (01:00/01:00 for UTC, 02:00/03:00 for
// local wall time) and are kept literal. During the repeated or skipped local
// hour the comparisons below still return one definite answer.
package dst

import "speakclock/internal/calendar"

const (
	startMonth = 3
	endMonth   = 10

	utcSwitchHour   = 1
	localStartHour  = 2
	localEndHour    = 3
	transitionShift = 60 // minutes
)

// IsEUDSTUTC reports whether the UTC reading dt falls inside the EU DST
// window that opens and closes at 01:00 UTC.
func IsEUDSTUTC(dt calendar.DateTime) bool {
	return inWindow(dt, utcSwitchHour, utcSwitchHour)
}

// IsEUDSTLocal reports whether the local wall-clock reading dt falls inside
// the EU DST window that opens at 02:00 and closes at 03:00 local time.
func IsEUDSTLocal(dt calendar.DateTime) bool {
	return inWindow(dt, localStartHour, localEndHour)
}

func inWindow(dt calendar.DateTime, startHour, endHour int) bool {
	if dt.Month < startMonth || dt.Month > endMonth {
		return false
	}
	if dt.Month > startMonth && dt.Month < endMonth {
		return true
	}

	if dt.Month == startMonth {
		startDay := calendar.LastSundayOfMonth(dt.Year, startMonth)
		if dt.Day > startDay {
			return true
		}
		if dt.Day < startDay {
			return false
		}
		return dt.Hour >= startHour
	}

	endDay := calendar.LastSundayOfMonth(dt.Year, endMonth)
	if dt.Day < endDay {
		return true
	}
	if dt.Day > endDay {
		return false
	}
	return dt.Hour < endHour
}

// Window holds the UTC instants at which EU DST starts and ends in a year.
type Window struct {
	Start calendar.DateTime
	End   calendar.DateTime
}

// Transitions returns the UTC DST window for year.
func Transitions(year int) Window {
	return Window{
		Start: calendar.New(year, startMonth, calendar.LastSundayOfMonth(year, startMonth), utcSwitchHour, 0, 0),
		End:   calendar.New(year, endMonth, calendar.LastSundayOfMonth(year, endMonth), utcSwitchHour, 0, 0),
	}
}

// Contains reports whether the UTC reading dt lies in [Start, End).
func (w Window) Contains(dt calendar.DateTime) bool {
	sec := calendar.EpochSecondsUTC(dt)
	return sec >= calendar.EpochSecondsUTC(w.Start) && sec < calendar.EpochSecondsUTC(w.End)
}

// ShiftMinutes is the clock adjustment applied while DST is active.
func ShiftMinutes() int {
	return transitionShift
}
