package speech

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"speakclock/internal/calendar"
	"speakclock/internal/model"
)

// names strips the catalog prefix and extension so tests compare clip names.
func names(t *testing.T, lang model.Language, p model.Playlist) []string {
	t.Helper()
	base := DefaultCatalog().Base(lang) + "/"
	out := make([]string, 0, len(p.Clips))
	for _, c := range p.Clips {
		require.True(t, strings.HasPrefix(c, base), "clip %q outside %q", c, base)
		require.True(t, strings.HasSuffix(c, ".mp3"), "clip %q", c)
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(c, base), ".mp3"))
	}
	return out
}

func at(h, m int) calendar.DateTime {
	return calendar.New(2026, 1, 29, h, m, 0)
}

func TestGermanTime(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	cases := []struct {
		h, m int
		want []string
	}{
		{1, 0, []string{"0100"}},
		{9, 5, []string{"09_Uhr", "05"}},
		{0, 0, []string{"0000"}},
		{23, 59, []string{"23_Uhr", "59"}},
		{12, 30, []string{"12_Uhr", "30"}},
	}
	for _, tc := range cases {
		p := c.Time(at(tc.h, tc.m), model.German)
		require.Equal(t, tc.want, names(t, model.German, p), "%02d:%02d", tc.h, tc.m)
		require.Equal(t, model.NoPause, p.PauseAfter)
		require.Equal(t, model.German, p.Language)
	}
}

func TestEnglishTime(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	cases := []struct {
		h, m int
		want []string
	}{
		{0, 0, []string{"it_is", "midnight"}},
		{12, 0, []string{"it_is", "12noon"}},
		{15, 5, []string{"03", "o5", "PM"}},
		{15, 45, []string{"03", "45", "PM"}},
		{15, 0, []string{"03oclock", "PM"}},
		{7, 0, []string{"07oclock", "AM"}},
		{0, 5, []string{"12", "o5", "AM"}},
		{12, 10, []string{"12", "10", "PM"}},
		{11, 59, []string{"11", "59", "AM"}},
	}
	for _, tc := range cases {
		p := c.Time(at(tc.h, tc.m), model.English)
		require.Equal(t, tc.want, names(t, model.English, p), "%02d:%02d", tc.h, tc.m)
	}
}

func TestTimeNormalizesOutOfRange(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	dt := at(0, 0)
	dt.Hour, dt.Minute = 25, 65
	require.Equal(t, []string{"01_Uhr", "05"}, names(t, model.German, c.Time(dt, model.German)))

	dt.Hour, dt.Minute = -1, 0
	require.Equal(t, []string{"2300"}, names(t, model.German, c.Time(dt, model.German)))
}

func TestTimeCapacity(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			require.LessOrEqual(t, c.Time(at(h, m), model.German).Len(), MaxTimeClipsGerman)
			require.LessOrEqual(t, c.Time(at(h, m), model.English).Len(), MaxTimeClipsEnglish)
		}
	}
	require.Equal(t, 2, MaxTimeClips(model.German))
	require.Equal(t, 3, MaxTimeClips(model.English))

	// A builder at the German time capacity keeps only the first two clips.
	b := newBuilder(DefaultCatalog(), model.German, MaxTimeClips(model.German))
	b.push("09_Uhr", "05", "extra")
	require.Equal(t, []string{"/mp3/09_Uhr.mp3", "/mp3/05.mp3"}, b.playlist(model.NoPause).Clips)

	b = newBuilder(DefaultCatalog(), model.English, MaxTimeClips(model.English))
	b.push("03", "45", "PM", "extra")
	require.Equal(t, []string{"/mp3_en/03.mp3", "/mp3_en/45.mp3", "/mp3_en/PM.mp3"}, b.playlist(model.NoPause).Clips)
}

func TestDecomposeNumber(t *testing.T) {
	require.Equal(t, []string{"20", "3"}, DecomposeNumber(23))
	require.Equal(t, []string{"20"}, DecomposeNumber(20))
	require.Equal(t, []string{"7"}, DecomposeNumber(7))
	require.Equal(t, []string{"0"}, DecomposeNumber(0))
	require.Equal(t, []string{"90"}, DecomposeNumber(90))
	require.Equal(t, []string{"90", "9"}, DecomposeNumber(99))
	require.Equal(t, []string{"h-20", "h-3"}, DecomposeOrdinal(23))
	require.Equal(t, []string{"h-11"}, DecomposeOrdinal(11))
}

func TestDecomposeYear(t *testing.T) {
	cases := map[int][]string{
		2026: {"2", "thousand", "20", "6"},
		2000: {"2", "thousand"},
		2010: {"2", "thousand", "10"},
		1984: {"1", "thousand", "9", "hundred", "80", "4"},
		1900: {"1", "thousand", "9", "hundred"},
		2100: {"2", "thousand", "1", "hundred"},
		999:  {"990", "9"},
		45:   {"40", "5"},
		12:   {"12"},
	}
	for year, want := range cases {
		require.Equal(t, want, DecomposeYear(year), "year %d", year)
	}
}

func TestGermanDate(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	p := c.Date(calendar.New(2026, 1, 29, 10, 0, 0), model.German)
	require.Equal(t,
		[]string{"4_day", "29_", "01_mo", "2", "thousand", "20", "6"},
		names(t, model.German, p))
	require.Equal(t, model.NoPause, p.PauseAfter)

	// Sunday keeps the raw 0 numbering.
	p = c.Date(calendar.New(2026, 3, 29, 0, 0, 0), model.German)
	require.Equal(t, "0_day", names(t, model.German, p)[0])
}

func TestEnglishDate(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	p := c.Date(calendar.New(2026, 1, 29, 10, 0, 0), model.English)
	require.Equal(t,
		[]string{"04d", "01mo", "29_", "20", "26"},
		names(t, model.English, p))
	require.Equal(t, 0, p.PauseAfter)

	p = c.Date(calendar.New(2005, 3, 6, 0, 0, 0), model.English)
	require.Equal(t,
		[]string{"07d", "03mo", "06_", "20", "05"},
		names(t, model.English, p))
}

func TestDateCapacity(t *testing.T) {
	c := NewCompiler(DefaultCatalog())
	// 1977-12-27 is the longest German form: 3 + 1 thousand 9 hundred 70 7.
	p := c.Date(calendar.New(1977, 12, 27, 0, 0, 0), model.German)
	require.Equal(t, 9, p.Len())
	require.LessOrEqual(t, p.Len(), MaxDateClips)
}

func TestBuilderTruncates(t *testing.T) {
	b := newBuilder(DefaultCatalog(), model.German, 2)
	b.push("a", "b", "c")
	p := b.playlist(model.NoPause)
	require.Equal(t, []string{"/mp3/a.mp3", "/mp3/b.mp3"}, p.Clips)

	// A pause index past the end is dropped.
	b = newBuilder(DefaultCatalog(), model.English, 1)
	b.push("x")
	require.Equal(t, model.NoPause, b.playlist(3).PauseAfter)
}

func TestCatalogClip(t *testing.T) {
	c := Catalog{GermanBase: "/sd/de/", EnglishBase: "/sd/en", Ext: ".wav"}
	require.Equal(t, "/sd/de/0100.wav", c.Clip(model.German, "0100"))
	require.Equal(t, "/sd/en/it_is.wav", c.Clip(model.English, "it_is"))
	require.Equal(t, "/sd/en/it_is", Catalog{EnglishBase: "/sd/en"}.Clip(model.English, "it_is"))
}
