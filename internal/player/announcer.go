package player

import (
	"context"
	"errors"
	"time"

	appLog "speakclock/internal/log"
	"speakclock/internal/model"
)

// Announcer plays playlists clip by clip.
type Announcer struct {
	Player Player
	// Pause is inserted after the clip at Playlist.PauseAfter.
	Pause time.Duration
}

// Play plays every clip of p in order. A clip that fails is logged and
// skipped; the joined errors are returned once the playlist is done.
// Cancelling ctx stops playback between clips.
func (a *Announcer) Play(ctx context.Context, p model.Playlist) error {
	var errs []error
	for i, clip := range p.Clips {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Player.Play(ctx, clip); err != nil {
			appLog.Error("player: clip failed", err, "clip", clip, "index", i)
			errs = append(errs, err)
		}
		if i == p.PauseAfter && i < len(p.Clips)-1 {
			if err := Wait(ctx, a.Pause); err != nil {
				return err
			}
		}
	}
	return errors.Join(errs...)
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
