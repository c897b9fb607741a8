package rtc

import (
	"context"
	"sync"
	"time"

	"speakclock/internal/calendar"
)

// Soft is a software clock: a start date-time plus the elapsed monotonic
// time since it was seeded. It stands in while no hardware RTC is present.
type Soft struct {
	mu    sync.Mutex
	start calendar.DateTime
	since time.Time
	now   func() time.Time
}

// NewSoft seeds a software clock with start. Month and day are clamped into
// range and the weekday is recomputed.
func NewSoft(start calendar.DateTime) *Soft {
	return newSoftAt(start, time.Now)
}

func newSoftAt(start calendar.DateTime, now func() time.Time) *Soft {
	s := &Soft{now: now}
	s.seed(start)
	return s
}

func (s *Soft) seed(start calendar.DateTime) {
	s.start = calendar.New(start.Year, start.Month, start.Day, start.Hour, start.Minute, start.Second)
	s.since = s.now()
}

// Read implements Clock.
func (s *Soft) Read(ctx context.Context) (calendar.DateTime, error) {
	if err := ctx.Err(); err != nil {
		return calendar.DateTime{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.since.IsZero() {
		return calendar.DateTime{}, ErrNotRunning
	}
	elapsed := int64(s.now().Sub(s.since) / time.Second)
	return calendar.AddSeconds(s.start, elapsed), nil
}

// Set implements Clock by reseeding.
func (s *Soft) Set(ctx context.Context, dt calendar.DateTime) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(dt)
	return nil
}
