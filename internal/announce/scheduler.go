package announce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"

	appLog "speakclock/internal/log"
)

// Scheduler speaks the time on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	spec string
}

// NewScheduler parses spec (see ParseSchedule) and registers a time
// announcement. An empty spec yields a nil Scheduler, which is valid to
// Start and Stop.
func NewScheduler(ctx context.Context, svc *Service, spec string, loc *time.Location) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}

	schedule, err := ParseSchedule(spec, loc, time.Now())
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		p, err := svc.SpeakTime(ctx)
		if err != nil {
			appLog.Error("scheduler: announcement failed", err, "spec", spec)
			return
		}
		appLog.Info("scheduler: announced", "clips", p.Len(), "spec", spec)
	}))
	return &Scheduler{cron: c, spec: spec}, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	appLog.Info("scheduler: started", "spec", s.spec)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running announcement to finish.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Next returns the next scheduled run, or the zero time.
func (s *Scheduler) Next() time.Time {
	if s == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

const rrulePrefix = "RRULE:"

// ParseSchedule accepts a standard five-field cron spec, a descriptor such
// as "@hourly", or an RFC 5545 recurrence prefixed with "RRULE:", e.g.
// "RRULE:FREQ=DAILY;BYHOUR=8,12,18;BYMINUTE=0;BYSECOND=0". Recurrences
// start at midnight of now's day in loc.
func ParseSchedule(spec string, loc *time.Location, now time.Time) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if len(spec) >= len(rrulePrefix) && strings.EqualFold(spec[:len(rrulePrefix)], rrulePrefix) {
		r, err := rrule.StrToRRule(spec[len(rrulePrefix):])
		if err != nil {
			return nil, fmt.Errorf("announce rrule %q: %w", spec, err)
		}
		if loc == nil {
			loc = time.Local
		}
		now = now.In(loc)
		r.DTStart(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc))
		return rruleSchedule{rule: r}, nil
	}

	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("announce cron %q: %w", spec, err)
	}
	return s, nil
}

// rruleSchedule adapts a recurrence to cron.Schedule. After returns the zero
// time once the rule is exhausted, which cron treats as never.
type rruleSchedule struct {
	rule *rrule.RRule
}

func (s rruleSchedule) Next(t time.Time) time.Time {
	return s.rule.After(t, false)
}
