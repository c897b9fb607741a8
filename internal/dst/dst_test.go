package dst

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"speakclock/internal/calendar"
)

func TestIsEUDSTUTCBoundaries(t *testing.T) {
	tests := []struct {
		name string
		dt   calendar.DateTime
		want bool
	}{
		{name: "january", dt: calendar.New(2026, 1, 15, 12, 0, 0), want: false},
		{name: "march before start day", dt: calendar.New(2026, 3, 28, 23, 59, 0), want: false},
		{name: "start day before switch", dt: calendar.New(2026, 3, 29, 0, 59, 0), want: false},
		{name: "start day at switch", dt: calendar.New(2026, 3, 29, 1, 0, 0), want: true},
		{name: "march after start day", dt: calendar.New(2026, 3, 30, 0, 0, 0), want: true},
		{name: "july", dt: calendar.New(2026, 7, 1, 0, 0, 0), want: true},
		{name: "october before end day", dt: calendar.New(2026, 10, 24, 23, 0, 0), want: true},
		{name: "end day before switch", dt: calendar.New(2026, 10, 25, 0, 59, 0), want: true},
		{name: "end day at switch", dt: calendar.New(2026, 10, 25, 1, 0, 0), want: false},
		{name: "october after end day", dt: calendar.New(2026, 10, 26, 0, 0, 0), want: false},
		{name: "december", dt: calendar.New(2026, 12, 24, 18, 0, 0), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsEUDSTUTC(tc.dt))
		})
	}
}

func TestIsEUDSTLocalBoundaries(t *testing.T) {
	tests := []struct {
		name string
		dt   calendar.DateTime
		want bool
	}{
		{name: "start day 01:59", dt: calendar.New(2026, 3, 29, 1, 59, 0), want: false},
		{name: "start day 02:00", dt: calendar.New(2026, 3, 29, 2, 0, 0), want: true},
		{name: "end day 02:59", dt: calendar.New(2026, 10, 25, 2, 59, 0), want: true},
		{name: "end day 03:00", dt: calendar.New(2026, 10, 25, 3, 0, 0), want: false},
		{name: "february", dt: calendar.New(2026, 2, 28, 12, 0, 0), want: false},
		{name: "november", dt: calendar.New(2026, 11, 1, 2, 0, 0), want: false},
		{name: "august", dt: calendar.New(2026, 8, 1, 2, 0, 0), want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsEUDSTLocal(tc.dt))
		})
	}
}

func TestIsEUDSTUTCMatchesBerlin(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for ts := start; ts.Year() == 2026; ts = ts.Add(30 * time.Minute) {
		dt := calendar.FromTime(ts)
		require.Equal(t, ts.In(berlin).IsDST(), IsEUDSTUTC(dt), ts.String())
	}
}

func TestTransitionsMatchLastSundayRecurrence(t *testing.T) {
	for _, tc := range []struct {
		month int
		rule  string
		pick  func(Window) calendar.DateTime
	}{
		{month: 3, rule: "FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU;BYHOUR=1;BYMINUTE=0;BYSECOND=0;COUNT=80", pick: func(w Window) calendar.DateTime { return w.Start }},
		{month: 10, rule: "FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU;BYHOUR=1;BYMINUTE=0;BYSECOND=0;COUNT=80", pick: func(w Window) calendar.DateTime { return w.End }},
	} {
		r, err := rrule.StrToRRule(tc.rule)
		require.NoError(t, err)
		r.DTStart(time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC))

		occurrences := r.All()
		require.Len(t, occurrences, 80)
		for _, occ := range occurrences {
			got := tc.pick(Transitions(occ.Year()))
			require.Equal(t, calendar.FromTime(occ.UTC()), got, "month %d year %d", tc.month, occ.Year())
		}
	}
}

func TestWindowContains(t *testing.T) {
	w := Transitions(2026)
	require.False(t, w.Contains(calendar.New(2026, 3, 29, 0, 59, 59)))
	require.True(t, w.Contains(calendar.New(2026, 3, 29, 1, 0, 0)))
	require.True(t, w.Contains(calendar.New(2026, 10, 25, 0, 59, 59)))
	require.False(t, w.Contains(calendar.New(2026, 10, 25, 1, 0, 0)))
	require.Equal(t, 60, ShiftMinutes())
}
