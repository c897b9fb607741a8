// Package localize turns a raw RTC reading into local wall-clock time.
//
// Three paths exist, chosen once from the deployment's Rule:
//
//   - RTC holds UTC and a timezone is configured: convert through a
//     database-backed *time.Location (IANA name or POSIX TZ string).
//   - RTC holds UTC and no timezone is configured: apply the fixed manual
//     offset and, if enabled, the EU DST rule evaluated on the UTC value.
//   - RTC already holds local time: only the local EU DST rule is applied.
package localize

import (
	"fmt"
	"strings"
	"time"

	"speakclock/internal/calendar"
	"speakclock/internal/dst"
	appLog "speakclock/internal/log"
)

// Rule is the fixed per-deployment description of how an RTC reading
// becomes local time.
type Rule struct {
	SourceIsUTC         bool
	PosixTZ             string
	ManualOffsetMinutes int
	DSTEnabled          bool
}

// Converter maps one RTC reading to local time. Implementations are pure.
type Converter interface {
	Convert(dt calendar.DateTime) calendar.DateTime
}

// ZoneConverter converts UTC readings through a timezone database entry.
type ZoneConverter struct {
	name string
	loc  *time.Location
}

// NewZoneConverter accepts either a POSIX TZ string
// ("CET-1CEST,M3.5.0/02,M10.5.0/03") or an IANA zone name ("Europe/Berlin").
func NewZoneConverter(tz string) (*ZoneConverter, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTZ)
	}
	if _, ok := parsePosixTZ(tz); ok {
		loc, err := loadPosixLocation(tz)
		if err != nil {
			return nil, err
		}
		return &ZoneConverter{name: tz, loc: loc}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTZ, tz, err)
	}
	return &ZoneConverter{name: tz, loc: loc}, nil
}

// Convert replaces every field of dt, weekday included, with the local
// reading of the same instant.
func (z *ZoneConverter) Convert(dt calendar.DateTime) calendar.DateTime {
	sec := calendar.EpochSecondsUTC(dt)
	return calendar.FromTime(time.Unix(sec, 0).In(z.loc))
}

// Location exposes the loaded location.
func (z *ZoneConverter) Location() *time.Location { return z.loc }

func (z *ZoneConverter) String() string { return "zone:" + z.name }

// EURuleConverter applies a fixed offset plus the EU DST rule to UTC readings.
type EURuleConverter struct {
	OffsetMinutes int
	DSTEnabled    bool
}

// Convert shifts dt by the base offset and by one more hour when the
// original UTC value is inside the EU DST window.
func (c EURuleConverter) Convert(dt calendar.DateTime) calendar.DateTime {
	local := calendar.AddMinutes(dt, c.OffsetMinutes)
	if c.DSTEnabled && dst.IsEUDSTUTC(dt) {
		local = calendar.AddMinutes(local, dst.ShiftMinutes())
	}
	return local
}

func (c EURuleConverter) String() string {
	return fmt.Sprintf("eu-rule:offset=%d,dst=%t", c.OffsetMinutes, c.DSTEnabled)
}

// LocalDSTConverter handles RTCs that already run on local standard time.
type LocalDSTConverter struct {
	DSTEnabled bool
}

func (c LocalDSTConverter) Convert(dt calendar.DateTime) calendar.DateTime {
	if c.DSTEnabled && dst.IsEUDSTLocal(dt) {
		return calendar.AddMinutes(dt, dst.ShiftMinutes())
	}
	return dt
}

func (c LocalDSTConverter) String() string {
	return fmt.Sprintf("local:dst=%t", c.DSTEnabled)
}

// Localizer binds a Rule to the Converter it selects.
type Localizer struct {
	rule Rule
	conv Converter
}

// New selects the converter for rule. A timezone string that cannot be
// loaded is reported here so that Localize itself never fails.
func New(rule Rule) (*Localizer, error) {
	conv, err := converterFor(rule)
	if err != nil {
		return nil, err
	}
	return &Localizer{rule: rule, conv: conv}, nil
}

func converterFor(rule Rule) (Converter, error) {
	if !rule.SourceIsUTC {
		return LocalDSTConverter{DSTEnabled: rule.DSTEnabled}, nil
	}
	if strings.TrimSpace(rule.PosixTZ) != "" {
		return NewZoneConverter(rule.PosixTZ)
	}
	return EURuleConverter{OffsetMinutes: rule.ManualOffsetMinutes, DSTEnabled: rule.DSTEnabled}, nil
}

// Localize returns the local wall-clock reading for rtc.
func (l *Localizer) Localize(rtc calendar.DateTime) calendar.DateTime {
	return l.conv.Convert(rtc)
}

// Fallback returns a Localizer that ignores the timezone string and applies
// the fixed offset and EU rule of rule.
func Fallback(rule Rule) *Localizer {
	if !rule.SourceIsUTC {
		return &Localizer{rule: rule, conv: LocalDSTConverter{DSTEnabled: rule.DSTEnabled}}
	}
	return &Localizer{rule: rule, conv: EURuleConverter{OffsetMinutes: rule.ManualOffsetMinutes, DSTEnabled: rule.DSTEnabled}}
}

// Location returns the zone wall-clock schedules follow. With a timezone
// string it is the loaded zone. Otherwise it is built from the manual offset
// and, when enabled, the EU rule switching at the same instants as the
// converter, so a schedule fires when the spoken clock shows its time.
func (l *Localizer) Location() *time.Location {
	if z, ok := l.conv.(*ZoneConverter); ok {
		return z.Location()
	}
	tz := ruleTZ(l.rule)
	loc, err := loadPosixLocation(tz)
	if err != nil {
		appLog.Error("localize: rule zone unusable, using fixed offset", err, "tz", tz)
		return time.FixedZone(offsetName(l.rule.ManualOffsetMinutes), l.rule.ManualOffsetMinutes*60)
	}
	return loc
}

// Rule returns the rule the localizer was built from.
func (l *Localizer) Rule() Rule { return l.rule }

// Describe names the active conversion path for status output.
func (l *Localizer) Describe() string {
	if s, ok := l.conv.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", l.conv)
}

// Localize is the one-shot form of New(rule).Localize(rtc). If the timezone
// string cannot be loaded the fixed-offset rule is used instead.
func Localize(rtc calendar.DateTime, rule Rule) calendar.DateTime {
	l, err := New(rule)
	if err != nil {
		appLog.Error("localize: timezone unusable, falling back to fixed offset", err, "tz", rule.PosixTZ)
		return Fallback(rule).Localize(rtc)
	}
	return l.Localize(rtc)
}
