package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"speakclock/internal/calendar"
)

// DefaultDS3231Addr is the fixed 7-bit address of the DS3231.
const DefaultDS3231Addr = 0x68

// DS3231 time registers 0x00..0x06: seconds, minutes, hours, day of week,
// date, month/century, year. All BCD; hours are kept in 24h mode.
const (
	regSeconds  = 0x00
	numTimeRegs = 7

	hour12Bit  = 0x40
	pmBit      = 0x20
	centuryBit = 0x80
	oscStopBit = 0x80
)

// regConn is the register transport; *i2c.Dev satisfies it.
type regConn interface {
	Tx(w, r []byte) error
}

// DS3231 reads the battery-backed DS3231 over I2C.
type DS3231 struct {
	busName string
	addr    uint16

	mu sync.Mutex
	// open yields a connection and its closer for one transaction. Replaced
	// in tests.
	open func() (regConn, io.Closer, error)
}

// NewDS3231 constructs a DS3231 on busName ("" for the default bus). The
// bus is opened per call so a hot-plugged module is picked up.
func NewDS3231(busName string, addr uint16) *DS3231 {
	if addr == 0 {
		addr = DefaultDS3231Addr
	}
	d := &DS3231{busName: busName, addr: addr}
	d.open = d.openBus
	return d
}

func (d *DS3231) openBus() (regConn, io.Closer, error) {
	if runtime.GOOS != "linux" {
		return nil, nil, errors.New("rtc: i2c unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(d.busName)
	if err != nil {
		return nil, nil, err
	}
	return &i2c.Dev{Bus: bus, Addr: d.addr}, bus, nil
}

// Read implements Clock.
func (d *DS3231) Read(ctx context.Context) (calendar.DateTime, error) {
	if err := ctx.Err(); err != nil {
		return calendar.DateTime{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, closer, err := d.open()
	if err != nil {
		return calendar.DateTime{}, err
	}
	defer closer.Close()

	buf := make([]byte, numTimeRegs)
	if err := dev.Tx([]byte{regSeconds}, buf); err != nil {
		return calendar.DateTime{}, fmt.Errorf("rtc: read time registers: %w", err)
	}
	return decodeTime(buf)
}

// Set implements Clock. The weekday register is derived from the date.
func (d *DS3231) Set(ctx context.Context, dt calendar.DateTime) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dt.Year < 2000 || dt.Year > 2199 {
		return fmt.Errorf("rtc: year %d outside ds3231 range", dt.Year)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, closer, err := d.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	w := append([]byte{regSeconds}, encodeTime(dt)...)
	if err := dev.Tx(w, nil); err != nil {
		return fmt.Errorf("rtc: write time registers: %w", err)
	}
	return nil
}

func decodeTime(r []byte) (calendar.DateTime, error) {
	if len(r) < numTimeRegs {
		return calendar.DateTime{}, fmt.Errorf("rtc: short register read (%d bytes)", len(r))
	}
	sec := fromBCD(r[0] &^ oscStopBit)
	minute := fromBCD(r[1])

	var hour int
	if r[2]&hour12Bit != 0 {
		hour = fromBCD(r[2]&0x1f) % 12
		if r[2]&pmBit != 0 {
			hour += 12
		}
	} else {
		hour = fromBCD(r[2] & 0x3f)
	}

	day := fromBCD(r[4])
	month := fromBCD(r[5] &^ centuryBit)
	year := 2000 + fromBCD(r[6])
	if r[5]&centuryBit != 0 {
		year += 100
	}

	if sec > 59 || minute > 59 || hour > 23 || month < 1 || month > 12 ||
		day < 1 || day > calendar.DaysInMonth(year, month) {
		return calendar.DateTime{}, fmt.Errorf("rtc: invalid register contents % x", r[:numTimeRegs])
	}
	// The weekday register is ignored; the weekday is derived from the date.
	return calendar.New(year, month, day, hour, minute, sec), nil
}

func encodeTime(dt calendar.DateTime) []byte {
	month := toBCD(dt.Month)
	year := dt.Year - 2000
	if year >= 100 {
		month |= centuryBit
		year -= 100
	}
	weekday := dt.Weekday
	if weekday == 0 {
		weekday = 7
	}
	return []byte{
		toBCD(dt.Second),
		toBCD(dt.Minute),
		toBCD(dt.Hour), // 24h mode: bit 6 clear
		byte(weekday),
		toBCD(dt.Day),
		month,
		toBCD(year),
	}
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | v%10)
}
