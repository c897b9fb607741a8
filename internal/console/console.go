// Package console implements the line-oriented test console: speak
// arbitrary times and dates, switch language, read and calibrate the
// battery ADC.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"speakclock/internal/announce"
	"speakclock/internal/battery"
	"speakclock/internal/calendar"
	appLog "speakclock/internal/log"
	"speakclock/internal/model"
)

// Speaker speaks an explicit local date-time.
type Speaker interface {
	SpeakAt(ctx context.Context, local calendar.DateTime, lang model.Language, kind announce.Kind) (model.Playlist, error)
}

// Settings is the persisted state the console edits.
type Settings interface {
	Language() model.Language
	SetLanguage(lang model.Language) error
	SaveCalibration(cal battery.Calibration) error
}

// Console executes one command per line and writes replies to out.
// It is not safe for concurrent use.
type Console struct {
	speaker  Speaker
	settings Settings
	battery  battery.Reader
	out      io.Writer

	// calibration dialog
	calActive bool
	calPoints []battery.Point
}

// New returns a Console. bat may be nil.
func New(speaker Speaker, settings Settings, bat battery.Reader, out io.Writer) *Console {
	return &Console{speaker: speaker, settings: settings, battery: bat, out: out}
}

// Run reads lines from r until EOF or ctx is done.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Handle(ctx, sc.Text())
	}
	return sc.Err()
}

const helpText = `Test commands:
  E HH:MM       - speak time in English (24h input)
  D HH:MM       - speak time in German (24h input)
  E DD.MM.YYYY  - speak date in English
  D DD.MM.YYYY  - speak date in German
  BAT           - read battery voltage
  CAL           - calibrate ADC (5 points)
  LANG EN|DE    - set default language
  LANG ?        - show current language
`

// Handle executes a single line. Lines that do not parse, or whose values
// are out of range, are ignored.
func (c *Console) Handle(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		if c.calActive {
			c.calPrompt()
		}
		return
	}
	if line == "?" || strings.EqualFold(line, "help") {
		fmt.Fprint(c.out, helpText)
		return
	}
	if c.calActive {
		c.calStep(ctx, line)
		return
	}

	upper := strings.ToUpper(line)
	switch {
	case upper == "BAT":
		c.bat(ctx)
		return
	case upper == "CAL":
		c.calStart()
		return
	case strings.HasPrefix(upper, "LANG"):
		c.lang(strings.TrimSpace(upper[len("LANG"):]))
		return
	}

	var lang model.Language
	switch upper[0] {
	case 'E':
		lang = model.English
	case 'D':
		lang = model.German
	default:
		return
	}
	rest := strings.TrimSpace(line[1:])

	switch {
	case strings.Contains(rest, ":"):
		hh, mm, ok := parseClock(rest)
		if !ok {
			return
		}
		fmt.Fprintf(c.out, "Test time %02d:%02d (%c)\n", hh, mm, line[0])
		c.speak(ctx, calendar.New(2026, 1, 1, hh, mm, 0), lang, announce.KindTime)
	case strings.Contains(rest, "."):
		dd, mo, yy, ok := parseDate(rest)
		if !ok {
			return
		}
		fmt.Fprintf(c.out, "Test date %02d.%02d.%04d (%c)\n", dd, mo, yy, line[0])
		c.speak(ctx, calendar.New(yy, mo, dd, 0, 0, 0), lang, announce.KindDate)
	}
}

func (c *Console) speak(ctx context.Context, dt calendar.DateTime, lang model.Language, kind announce.Kind) {
	p, err := c.speaker.SpeakAt(ctx, dt, lang, kind)
	for _, clip := range p.Clips {
		fmt.Fprintf(c.out, "Play: %s\n", clip)
	}
	if err != nil {
		appLog.Error("console: playback incomplete", err, "kind", kind.String())
	}
}

func parseClock(s string) (hh, mm int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	hh, err1 := strconv.Atoi(strings.TrimSpace(h))
	mm, err2 := strconv.Atoi(strings.TrimSpace(m))
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

func parseDate(s string) (dd, mo, yy int, ok bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" {
		return 0, 0, 0, false
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	dd, mo, yy = vals[0], vals[1], vals[2]
	if dd < 1 || dd > 31 || mo < 1 || mo > 12 || yy < 1970 {
		return 0, 0, 0, false
	}
	return dd, mo, yy, true
}

func (c *Console) lang(arg string) {
	switch arg {
	case "", "?":
		fmt.Fprintf(c.out, "Language: %s\n", c.settings.Language().Code())
		return
	}
	lang, err := model.ParseLanguage(arg)
	if err != nil {
		return
	}
	if err := c.settings.SetLanguage(lang); err != nil {
		appLog.Error("console: persist language failed", err)
	}
	if lang == model.English {
		fmt.Fprintln(c.out, "Language set to English")
	} else {
		fmt.Fprintln(c.out, "Language set to German")
	}
}

func (c *Console) bat(ctx context.Context) {
	if c.battery == nil {
		fmt.Fprintln(c.out, "BAT: no battery reader configured")
		return
	}
	st, err := c.battery.Read(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "BAT: read failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "BAT: %.3f V\n", st.Volts)
}

func (c *Console) calStart() {
	c.calActive = true
	c.calPoints = c.calPoints[:0]
	fmt.Fprintf(c.out, "CAL: enter %d calibration points.\n", battery.CalibrationPoints)
	c.calPrompt()
}

func (c *Console) calReset() {
	c.calActive = false
	c.calPoints = nil
}

func (c *Console) calPrompt() {
	fmt.Fprintf(c.out, "CAL %d/%d: set voltage, enter U_Bat in V (e.g. 3.70)\n",
		len(c.calPoints)+1, battery.CalibrationPoints)
}

func (c *Console) calStep(ctx context.Context, line string) {
	if c.battery == nil {
		fmt.Fprintln(c.out, "CAL: no ADC reader configured")
		c.calReset()
		return
	}
	uBat, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		fmt.Fprintln(c.out, "CAL: invalid number, try again")
		c.calPrompt()
		return
	}
	uADC, err := c.battery.ReadADC(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "CAL: adc read failed: %v\n", err)
		c.calReset()
		return
	}
	c.calPoints = append(c.calPoints, battery.Point{ADC: uADC, Battery: uBat})
	fmt.Fprintf(c.out, "CAL: recorded %d/%d -> U_ADC=%.4f V, U_Bat=%.4f V\n",
		len(c.calPoints), battery.CalibrationPoints, uADC, uBat)
	if len(c.calPoints) < battery.CalibrationPoints {
		c.calPrompt()
		return
	}

	points := c.calPoints
	c.calReset()
	cal, err := battery.Fit(points)
	if err != nil {
		fmt.Fprintln(c.out, "CAL: regression failed (singular)")
		return
	}
	if err := c.settings.SaveCalibration(cal); err != nil {
		appLog.Error("console: persist calibration failed", err)
		fmt.Fprintf(c.out, "CAL: computed %s\n", cal)
		fmt.Fprintln(c.out, "CAL: save failed")
		return
	}
	fmt.Fprintf(c.out, "CAL: saved %s\n", cal)
}
