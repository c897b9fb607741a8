package speech

import (
	"fmt"

	"speakclock/internal/calendar"
	"speakclock/internal/model"
)

// Compiler turns local date-times into playlists. It holds no mutable state
// and is safe for concurrent use.
type Compiler struct {
	Catalog Catalog
}

// NewCompiler returns a Compiler over catalog.
func NewCompiler(catalog Catalog) Compiler {
	return Compiler{Catalog: catalog}
}

// Time compiles the spoken form of dt's hour and minute.
func (c Compiler) Time(dt calendar.DateTime, lang model.Language) model.Playlist {
	b := newBuilder(c.Catalog, lang, MaxTimeClips(lang))
	hour := mod(dt.Hour, 24)
	minute := mod(dt.Minute, 60)

	if lang == model.English {
		englishTime(b, hour, minute)
	} else {
		germanTime(b, hour, minute)
	}
	return b.playlist(model.NoPause)
}

// germanTime: full hours are a single "HHMM" clip, e.g. "0100";
// other times are "HH_Uhr" followed by "MM".
func germanTime(b *builder, hour, minute int) {
	if minute == 0 {
		b.push(fmt.Sprintf("%02d%02d", hour, minute))
		return
	}
	b.push(fmt.Sprintf("%02d_Uhr", hour), fmt.Sprintf("%02d", minute))
}

func englishTime(b *builder, hour, minute int) {
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}
	meridiem := "PM"
	if hour < 12 {
		meridiem = "AM"
	}

	if minute == 0 {
		switch hour {
		case 0:
			b.push("it_is", "midnight")
		case 12:
			b.push("it_is", "12noon")
		default:
			b.push(fmt.Sprintf("%02doclock", hour12), meridiem)
		}
		return
	}

	b.push(fmt.Sprintf("%02d", hour12))
	if minute < 10 {
		b.push(fmt.Sprintf("o%d", minute))
	} else {
		b.push(fmt.Sprintf("%02d", minute))
	}
	b.push(meridiem)
}

// Date compiles the spoken form of dt's weekday, day, month and year.
//
// English playlists set PauseAfter to 0: the weekday is followed by a short
// pause before the rest plays as one block. German playlists have no pause.
func (c Compiler) Date(dt calendar.DateTime, lang model.Language) model.Playlist {
	b := newBuilder(c.Catalog, lang, MaxDateClips)

	if lang == model.English {
		weekday := dt.Weekday
		if weekday == 0 {
			weekday = 7 // 1=Monday .. 7=Sunday
		}
		b.push(
			fmt.Sprintf("%02dd", weekday),
			fmt.Sprintf("%02dmo", dt.Month),
			fmt.Sprintf("%02d_", dt.Day),
			// The year is read as two two-digit groups, "20" "26",
			// not through DecomposeYear.
			fmt.Sprintf("%02d", dt.Year/100),
			fmt.Sprintf("%02d", dt.Year%100),
		)
		return b.playlist(0)
	}

	b.push(
		fmt.Sprintf("%d_day", dt.Weekday),
		fmt.Sprintf("%02d_", dt.Day),
		fmt.Sprintf("%02d_mo", dt.Month),
	)
	b.push(DecomposeYear(dt.Year)...)
	return b.playlist(model.NoPause)
}

func mod(v, m int) int {
	v %= m
	if v < 0 {
		v += m
	}
	return v
}
