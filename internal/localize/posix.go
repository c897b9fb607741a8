package localize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"speakclock/internal/dst"
)

// ErrInvalidTZ is returned when a timezone string is neither a loadable
// IANA zone name nor a well-formed POSIX TZ string.
var ErrInvalidTZ = errors.New("localize: invalid timezone")

// posixTZ matches the POSIX TZ forms used by the clock:
//
//	std offset [dst [offset] [,start[/time],end[/time]]]
//
// e.g. "CET-1CEST,M3.5.0/02,M10.5.0/03" or "<+0530>-5:30".
var posixTZ = regexp.MustCompile(`^(?P<StdName>[[:alpha:]]{3,}|<[[:alnum:]+-]+>)` +
	`(?P<StdOffset>[-+]?[0-9]+(?::[0-9]+){0,2})` +
	`(?P<DstName>[[:alpha:]]{3,}|<[[:alnum:]+-]+>)?` +
	`(?P<DstOffset>[-+]?[0-9]+(?::[0-9]+){0,2})?` +
	`(?:,(?P<StartRule>(?:J?[0-9]+|M[0-9]+\.[0-9]+\.[0-9]+)(?:/[+-]?[0-9]+(?::[0-9]+){0,2})?)` +
	`,(?P<EndRule>(?:J?[0-9]+|M[0-9]+\.[0-9]+\.[0-9]+)(?:/[+-]?[0-9]+(?::[0-9]+){0,2})?))?$`)

type posixZone struct {
	stdName string
	// stdOffset is seconds east of UTC (the POSIX sign is inverted).
	stdOffset int
	hasDST    bool
}

// parsePosixTZ validates s and extracts the standard-time designation and
// offset. Transition rules themselves are evaluated by the time package.
func parsePosixTZ(s string) (posixZone, bool) {
	m := posixTZ.FindStringSubmatch(s)
	if m == nil {
		return posixZone{}, false
	}
	west, err := parsePosixOffset(m[posixTZ.SubexpIndex("StdOffset")])
	if err != nil {
		return posixZone{}, false
	}
	name := strings.Trim(m[posixTZ.SubexpIndex("StdName")], "<>")
	return posixZone{
		stdName:   name,
		stdOffset: -west,
		hasDST:    m[posixTZ.SubexpIndex("DstName")] != "",
	}, true
}

// parsePosixOffset converts "5", "-1", "+5:30" or "-8:45:15" into seconds
// west of Greenwich.
func parsePosixOffset(s string) (int, error) {
	sign := 1
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		s = s[1:]
		sign = -1
	}

	parts := strings.Split(s, ":")
	var hms [3]int
	for i, p := range parts {
		if i >= len(hms) {
			return 0, fmt.Errorf("offset %q has too many fields", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, err
		}
		hms[i] = n
	}
	if hms[0] > 24 || hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("offset %q out of range", s)
	}
	return sign * (hms[0]*3600 + hms[1]*60 + hms[2]), nil
}

// loadPosixLocation turns a POSIX TZ string into a *time.Location by
// wrapping it in a minimal TZif v2 file: one local time type, no
// transitions, and the TZ string as footer. The time package then applies
// the footer rule to every instant.
func loadPosixLocation(tz string) (*time.Location, error) {
	zone, ok := parsePosixTZ(tz)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTZ, tz)
	}
	loc, err := time.LoadLocationFromTZData(tz, tzifWithFooter(zone, tz))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTZ, tz, err)
	}
	return loc, nil
}

func tzifWithFooter(zone posixZone, tz string) []byte {
	designation := append([]byte(zone.stdName), 0)

	var buf bytes.Buffer
	writeBlock := func() {
		buf.WriteString("TZif")
		buf.WriteByte('2')
		buf.Write(make([]byte, 15))
		// isutcnt, isstdcnt, leapcnt, timecnt, typecnt, charcnt
		counts := [6]uint32{0, 0, 0, 0, 1, uint32(len(designation))}
		_ = binary.Write(&buf, binary.BigEndian, counts)
		_ = binary.Write(&buf, binary.BigEndian, int32(zone.stdOffset))
		buf.WriteByte(0) // isdst
		buf.WriteByte(0) // designation index
		buf.Write(designation)
	}

	// v1 block followed by the v2+ block, then the footer.
	writeBlock()
	writeBlock()
	buf.WriteByte('\n')
	buf.WriteString(tz)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// ruleTZ renders a fixed-offset rule as a POSIX TZ string with numeric
// designations, e.g. "<+0100>-1<+0200>,M3.5.0/2,M10.5.0/3".
//
// Switch times are local: the start in standard time, the end in summer
// time. A UTC clock switches at 01:00 UTC. A local clock keeps standard time
// and is in summer time from 02:00 to 03:00 standard, i.e. 04:00 summer.
func ruleTZ(rule Rule) string {
	off := rule.ManualOffsetMinutes
	tz := offsetName(off) + posixClock(-off)
	if !rule.DSTEnabled {
		return tz
	}

	shift := dst.ShiftMinutes()
	start, end := 60+off, 60+off+shift
	if !rule.SourceIsUTC {
		start, end = 120, 180+shift
	}
	return tz + offsetName(off+shift) +
		",M3.5.0/" + posixClock(start) +
		",M10.5.0/" + posixClock(end)
}

// offsetName formats minutes east of UTC as "<+hhmm>".
func offsetName(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign, minutes = '-', -minutes
	}
	return fmt.Sprintf("<%c%02d%02d>", sign, minutes/60, minutes%60)
}

// posixClock formats minutes as a POSIX "[-]h[:mm]" value.
func posixClock(minutes int) string {
	sign := ""
	if minutes < 0 {
		sign, minutes = "-", -minutes
	}
	if minutes%60 == 0 {
		return sign + strconv.Itoa(minutes/60)
	}
	return fmt.Sprintf("%s%d:%02d", sign, minutes/60, minutes%60)
}
