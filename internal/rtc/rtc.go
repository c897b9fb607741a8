// Package rtc provides the wall-clock sources the announcer reads from:
// a DS3231 on I2C, a software clock for boards without one, and the host
// system clock.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"speakclock/internal/calendar"
	appLog "speakclock/internal/log"
)

// ErrNotRunning is returned when a clock has not been started or set.
var ErrNotRunning = errors.New("rtc: clock not running")

// Clock reads and sets date-times in the frame the deployment declares
// (UTC or local). Implementations must be safe for concurrent use.
type Clock interface {
	Read(ctx context.Context) (calendar.DateTime, error)
	Set(ctx context.Context, dt calendar.DateTime) error
}

// Options selects and configures a Clock.
type Options struct {
	// Driver is "ds3231", "soft" or "system".
	Driver  string
	I2CBus  string
	I2CAddr uint16
	// SoftStart seeds the software clock.
	SoftStart calendar.DateTime
}

// Open returns the Clock for opts. A DS3231 that cannot be read falls back
// to the software clock seeded with SoftStart.
func Open(ctx context.Context, opts Options) (Clock, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "ds3231":
		if runtime.GOOS != "linux" {
			appLog.Info("rtc: ds3231 unavailable on this platform, using soft clock", "goos", runtime.GOOS)
			return NewSoft(opts.SoftStart), nil
		}
		d := NewDS3231(opts.I2CBus, opts.I2CAddr)
		if _, err := d.Read(ctx); err != nil {
			appLog.Error("rtc: ds3231 read failed, using soft clock", err, "bus", opts.I2CBus, "addr", fmt.Sprintf("0x%02x", d.addr))
			return NewSoft(opts.SoftStart), nil
		}
		return d, nil
	case "soft":
		return NewSoft(opts.SoftStart), nil
	case "system":
		return NewSystem(), nil
	default:
		return nil, fmt.Errorf("rtc: unknown driver %q", opts.Driver)
	}
}
