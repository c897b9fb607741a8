package rtc

import (
	"context"
	"errors"
	"time"

	"speakclock/internal/calendar"
)

// System reads the host clock in UTC. Setting it is not supported.
type System struct {
	now func() time.Time
}

func NewSystem() *System {
	return &System{now: time.Now}
}

// Read implements Clock.
func (s *System) Read(ctx context.Context) (calendar.DateTime, error) {
	if err := ctx.Err(); err != nil {
		return calendar.DateTime{}, err
	}
	return calendar.FromTime(s.now().UTC()), nil
}

// Set implements Clock; the host clock is owned by the OS.
func (s *System) Set(context.Context, calendar.DateTime) error {
	return errors.New("rtc: system clock is read-only")
}
