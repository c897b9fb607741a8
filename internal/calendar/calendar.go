// Package calendar implements the minute-granularity calendar arithmetic used
// by the clock: leap years, month lengths, weekdays, epoch conversion and
// date-time addition with rollover.
//
// Everything here is pure and works on DateTime values. Weekday numbering is
// 0=Sunday .. 6=Saturday throughout the module.
package calendar

import (
	"fmt"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	minutesPerDay    = 24 * 60
)

// DateTime is a broken-down wall-clock reading as delivered by the RTC.
//
// Weekday is always the value WeekdayForDate returns for (Year, Month, Day);
// constructors derive it and AddMinutes/AddSeconds keep it in step.
type DateTime struct {
	Year    int
	Month   int // 1-12
	Day     int // 1-31
	Weekday int // 0=Sunday
	Hour    int
	Minute  int
	Second  int
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// weekdayTable is the per-month offset of the Sakamoto/Zeller-style congruence.
var weekdayTable = [12]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// IsLeapYear reports whether y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// DaysInMonth returns 28..31 for month m (1-12) of year y.
func DaysInMonth(y, m int) int {
	if m == 2 && IsLeapYear(y) {
		return 29
	}
	return monthDays[m-1]
}

// WeekdayForDate returns 0=Sunday .. 6=Saturday. January and February are
// looked up as months of the previous year.
func WeekdayForDate(y, m, d int) int {
	if m < 3 {
		y--
	}
	return (y + y/4 - y/100 + y/400 + weekdayTable[m-1] + d) % 7
}

// LastSundayOfMonth returns the day-of-month of the last Sunday in m.
// If the last day is itself a Sunday it is returned unchanged.
func LastSundayOfMonth(y, m int) int {
	last := DaysInMonth(y, m)
	return last - WeekdayForDate(y, m, last)
}

// New builds a DateTime with a derived weekday. Month is clamped to 1..12
// and day to the valid range of that month, the way a freshly seeded
// software clock treats its start value.
func New(year, month, day, hour, minute, second int) DateTime {
	if month < 1 {
		month = 1
	}
	if month > 12 {
		month = 12
	}
	if dim := DaysInMonth(year, month); day > dim {
		day = dim
	}
	if day < 1 {
		day = 1
	}
	return DateTime{
		Year:    year,
		Month:   month,
		Day:     day,
		Weekday: WeekdayForDate(year, month, day),
		Hour:    hour,
		Minute:  minute,
		Second:  second,
	}
}

// FromTime converts t (in its own location) into a DateTime.
func FromTime(t time.Time) DateTime {
	return DateTime{
		Year:    t.Year(),
		Month:   int(t.Month()),
		Day:     t.Day(),
		Weekday: int(t.Weekday()),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}

// Time returns dt as a time.Time in loc. A nil loc means UTC.
func (dt DateTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(dt.Year, time.Month(dt.Month), dt.Day, dt.Hour, dt.Minute, dt.Second, 0, loc)
}

// Valid reports whether dt lies in the supported input domain: year >= 1970,
// a real calendar date, a 24h time and a consistent weekday.
func (dt DateTime) Valid() bool {
	if dt.Year < 1970 || dt.Month < 1 || dt.Month > 12 {
		return false
	}
	if dt.Day < 1 || dt.Day > DaysInMonth(dt.Year, dt.Month) {
		return false
	}
	if dt.Hour < 0 || dt.Hour > 23 || dt.Minute < 0 || dt.Minute > 59 || dt.Second < 0 || dt.Second > 59 {
		return false
	}
	return dt.Weekday == WeekdayForDate(dt.Year, dt.Month, dt.Day)
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (wd=%d)",
		dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second, dt.Weekday)
}

// AddMinutes adds a signed number of minutes. The minute of day is
// normalized into 0..1439 and every carried day moves the date and weekday
// by one in the matching direction. Seconds are left untouched.
func AddMinutes(dt DateTime, delta int) DateTime {
	if delta == 0 {
		return dt
	}
	total := dt.Hour*60 + dt.Minute + delta
	dayDelta := 0
	if total < 0 {
		dayDelta = -((-total + minutesPerDay - 1) / minutesPerDay)
		total -= dayDelta * minutesPerDay
	}
	dayDelta += total / minutesPerDay
	total %= minutesPerDay

	dt.Hour = total / 60
	dt.Minute = total % 60
	return addDays(dt, dayDelta)
}

// AddSeconds advances dt by a non-negative number of seconds.
func AddSeconds(dt DateTime, seconds int64) DateTime {
	if seconds <= 0 {
		return dt
	}
	total := int64(dt.Hour)*secondsPerHour + int64(dt.Minute)*secondsPerMinute + int64(dt.Second) + seconds
	dayDelta := total / secondsPerDay
	total %= secondsPerDay

	dt.Hour = int(total / secondsPerHour)
	dt.Minute = int(total/secondsPerMinute) % 60
	dt.Second = int(total % secondsPerMinute)
	return addDays(dt, int(dayDelta))
}

func addDays(dt DateTime, n int) DateTime {
	for ; n > 0; n-- {
		if dt.Day < DaysInMonth(dt.Year, dt.Month) {
			dt.Day++
		} else {
			dt.Day = 1
			if dt.Month < 12 {
				dt.Month++
			} else {
				dt.Month = 1
				dt.Year++
			}
		}
		dt.Weekday = (dt.Weekday + 1) % 7
	}
	for ; n < 0; n++ {
		if dt.Day > 1 {
			dt.Day--
		} else {
			if dt.Month > 1 {
				dt.Month--
			} else {
				dt.Month = 12
				dt.Year--
			}
			dt.Day = DaysInMonth(dt.Year, dt.Month)
		}
		dt.Weekday = (dt.Weekday + 6) % 7
	}
	return dt
}

func daysInYear(y int) int {
	if IsLeapYear(y) {
		return 366
	}
	return 365
}

// EpochSecondsUTC interprets dt as UTC and returns POSIX seconds since
// 1970-01-01T00:00:00Z. Leap seconds are not counted.
func EpochSecondsUTC(dt DateTime) int64 {
	var days int64
	for y := 1970; y < dt.Year; y++ {
		days += int64(daysInYear(y))
	}
	for m := 1; m < dt.Month; m++ {
		days += int64(DaysInMonth(dt.Year, m))
	}
	days += int64(dt.Day - 1)

	return days*secondsPerDay +
		int64(dt.Hour)*secondsPerHour +
		int64(dt.Minute)*secondsPerMinute +
		int64(dt.Second)
}

// FromEpochSeconds is the inverse of EpochSecondsUTC.
func FromEpochSeconds(sec int64) DateTime {
	days := sec / secondsPerDay
	rem := sec % secondsPerDay
	if rem < 0 {
		rem += secondsPerDay
		days--
	}

	year := 1970
	for days < 0 {
		year--
		days += int64(daysInYear(year))
	}
	for days >= int64(daysInYear(year)) {
		days -= int64(daysInYear(year))
		year++
	}
	month := 1
	for days >= int64(DaysInMonth(year, month)) {
		days -= int64(DaysInMonth(year, month))
		month++
	}

	dt := New(year, month, int(days)+1, 0, 0, 0)
	dt.Hour = int(rem / secondsPerHour)
	dt.Minute = int(rem/secondsPerMinute) % 60
	dt.Second = int(rem % secondsPerMinute)
	return dt
}
