// Package announce ties the clock, the localizer, the speech compilers and
// the player together into spoken announcements.
package announce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"speakclock/internal/calendar"
	"speakclock/internal/localize"
	appLog "speakclock/internal/log"
	"speakclock/internal/model"
	"speakclock/internal/player"
	"speakclock/internal/rtc"
	"speakclock/internal/speech"
)

// Kind selects what is spoken.
type Kind int

const (
	KindTime Kind = iota
	KindDate
)

func (k Kind) String() string {
	if k == KindDate {
		return "date"
	}
	return "time"
}

// ParseKind accepts "time" and "date".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time":
		return KindTime, nil
	case "date":
		return KindDate, nil
	default:
		return KindTime, fmt.Errorf("unknown announcement kind %q", s)
	}
}

// Store is the persisted state the service needs.
type Store interface {
	Language() model.Language
	LastAnnounce() (int64, bool)
	SaveLastAnnounce(epoch int64) error
}

// PlaylistPlayer plays a whole playlist; *player.Announcer implements it.
type PlaylistPlayer interface {
	Play(ctx context.Context, p model.Playlist) error
}

// Options tune the trigger behaviour.
type Options struct {
	// RepeatWindow: a trigger within this long of the previous one also
	// speaks the date.
	RepeatWindow time.Duration
	// DateGap separates the time and the date.
	DateGap time.Duration
}

// Result describes one trigger.
type Result struct {
	Local     calendar.DateTime `json:"local"`
	Language  model.Language    `json:"language"`
	Time      model.Playlist    `json:"time"`
	Date      *model.Playlist   `json:"date,omitempty"`
	EpochUTC  int64             `json:"epoch_utc"`
	SinceLast int64             `json:"since_last_sec"`
}

// Service speaks the current time and date. Announcements are serialized.
type Service struct {
	clock     rtc.Clock
	localizer *localize.Localizer
	compiler  speech.Compiler
	out       PlaylistPlayer
	store     Store
	opts      Options

	mu sync.Mutex
}

// NewService wires a Service.
func NewService(clock rtc.Clock, l *localize.Localizer, c speech.Compiler, out PlaylistPlayer, store Store, opts Options) *Service {
	return &Service{
		clock:     clock,
		localizer: l,
		compiler:  c,
		out:       out,
		store:     store,
		opts:      opts,
	}
}

// Now reads the clock and localizes it. The second value is the raw reading.
func (s *Service) Now(ctx context.Context) (local, raw calendar.DateTime, err error) {
	raw, err = s.clock.Read(ctx)
	if err != nil {
		return calendar.DateTime{}, calendar.DateTime{}, err
	}
	return s.localizer.Localize(raw), raw, nil
}

// Trigger handles a button press: speak the time, and the date as well when
// the previous trigger lies within the repeat window. The trigger time is
// persisted afterwards. A failed clock read skips the announcement.
func (s *Service) Trigger(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, raw, err := s.Now(ctx)
	if err != nil {
		appLog.Error("announce: rtc read failed", err)
		return Result{}, fmt.Errorf("read clock: %w", err)
	}

	// The delta is only meaningful within one frame, so the raw reading is
	// used whether the clock keeps UTC or local time.
	now := calendar.EpochSecondsUTC(raw)
	res := Result{Local: local, Language: s.store.Language(), EpochUTC: now}

	prev, hasPrev := s.store.LastAnnounce()
	if hasPrev {
		res.SinceLast = now - prev
	}
	withDate := hasPrev && res.SinceLast >= 0 && res.SinceLast <= int64(s.opts.RepeatWindow/time.Second)
	appLog.Debug("announce: trigger", "since_last", res.SinceLast, "has_prev", hasPrev, "with_date", withDate)

	res.Time = s.compiler.Time(local, res.Language)
	if err := s.out.Play(ctx, res.Time); err != nil {
		appLog.Error("announce: time playback incomplete", err)
	}

	if withDate {
		if err := player.Wait(ctx, s.opts.DateGap); err != nil {
			return res, err
		}
		date := s.compiler.Date(local, res.Language)
		res.Date = &date
		if err := s.out.Play(ctx, date); err != nil {
			appLog.Error("announce: date playback incomplete", err)
		}
	}

	if err := s.store.SaveLastAnnounce(now); err != nil {
		appLog.Error("announce: persist trigger time failed", err)
	}
	return res, nil
}

// Speak reads the clock and speaks kind in the current language.
func (s *Service) Speak(ctx context.Context, kind Kind) (model.Playlist, error) {
	local, _, err := s.Now(ctx)
	if err != nil {
		appLog.Error("announce: rtc read failed", err)
		return model.Playlist{}, fmt.Errorf("read clock: %w", err)
	}
	return s.SpeakAt(ctx, local, s.store.Language(), kind)
}

// SpeakTime speaks the current time.
func (s *Service) SpeakTime(ctx context.Context) (model.Playlist, error) {
	return s.Speak(ctx, KindTime)
}

// SpeakDate speaks the current date.
func (s *Service) SpeakDate(ctx context.Context) (model.Playlist, error) {
	return s.Speak(ctx, KindDate)
}

// SpeakAt speaks an explicit local date-time, bypassing the clock.
func (s *Service) SpeakAt(ctx context.Context, local calendar.DateTime, lang model.Language, kind Kind) (model.Playlist, error) {
	p := s.Compile(local, lang, kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	return p, s.out.Play(ctx, p)
}

// Compile builds the playlist without playing it.
func (s *Service) Compile(local calendar.DateTime, lang model.Language, kind Kind) model.Playlist {
	if kind == KindDate {
		return s.compiler.Date(local, lang)
	}
	return s.compiler.Time(local, lang)
}

// Language returns the persisted language.
func (s *Service) Language() model.Language {
	return s.store.Language()
}

// Clock exposes the underlying clock for setting it.
func (s *Service) Clock() rtc.Clock { return s.clock }

// Localizer exposes the active localization.
func (s *Service) Localizer() *localize.Localizer { return s.localizer }
