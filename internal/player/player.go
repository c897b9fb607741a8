// Package player plays clip ids through an external decoder and sequences
// whole playlists.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appLog "speakclock/internal/log"
)

// ErrClipMissing is returned when a clip id has no file under the audio root.
var ErrClipMissing = errors.New("player: clip file missing")

// Player plays a single clip and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, clip string) error
}

const (
	// GainMin and GainMax bound the output gain.
	GainMin = 0.1
	GainMax = 1.0

	fileToken  = "{file}"
	scaleToken = "{scale}"
)

// DefaultArgv decodes quietly with mpg123, scaling output by the gain.
var DefaultArgv = []string{"mpg123", "-q", "-f", scaleToken, fileToken}

// CommandPlayer runs an external decoder per clip. Clip ids are resolved
// below Root; "{file}" in Argv is replaced by the resolved path (appended if
// absent) and "{scale}" by the gain as an mpg123 scale factor.
type CommandPlayer struct {
	Root string
	Argv []string
	// Gain is the fixed gain, used when Volume is nil or fails.
	Gain float64
	// Volume, if set, is sampled before every clip.
	Volume  GainSource
	Timeout time.Duration

	run func(ctx context.Context, argv []string) error
}

// NewCommandPlayer returns a CommandPlayer. An empty argv selects DefaultArgv.
func NewCommandPlayer(root string, argv []string, gain float64) *CommandPlayer {
	if len(argv) == 0 {
		argv = DefaultArgv
	}
	return &CommandPlayer{
		Root:    root,
		Argv:    argv,
		Gain:    ClampGain(gain),
		Timeout: 15 * time.Second,
		run:     runCommand,
	}
}

// ClampGain limits g to [GainMin, GainMax].
func ClampGain(g float64) float64 {
	if g < GainMin {
		return GainMin
	}
	if g > GainMax {
		return GainMax
	}
	return g
}

// Resolve maps a clip id such as "/mp3/0100.mp3" to a path below Root.
func (p *CommandPlayer) Resolve(clip string) string {
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+clip)), "/"))
	return filepath.Join(p.Root, rel)
}

// Play implements Player.
func (p *CommandPlayer) Play(ctx context.Context, clip string) error {
	path := p.Resolve(clip)
	if _, err := os.Stat(path); err != nil {
		appLog.Debug("player: clip probe", "clip", clip, "path", path, "exists", false)
		return fmt.Errorf("%w: %s", ErrClipMissing, clip)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	argv := p.argv(path, p.gain(ctx))
	if err := p.run(ctx, argv); err != nil {
		return fmt.Errorf("play clip %q: %w", clip, err)
	}
	return nil
}

// gain returns the gain for the next clip.
func (p *CommandPlayer) gain(ctx context.Context) float64 {
	if p.Volume == nil {
		return p.Gain
	}
	g, err := p.Volume.Gain(ctx)
	if err != nil {
		appLog.Error("player: volume read failed, using configured gain", err)
		return p.Gain
	}
	appLog.Debug("player: volume", "gain", g)
	return g
}

func (p *CommandPlayer) argv(path string, gain float64) []string {
	scale := strconv.Itoa(int(ClampGain(gain) * 32768))
	out := make([]string, 0, len(p.Argv)+1)
	hasFile := false
	for _, a := range p.Argv {
		if strings.Contains(a, fileToken) {
			hasFile = true
		}
		a = strings.ReplaceAll(a, fileToken, path)
		a = strings.ReplaceAll(a, scaleToken, scale)
		out = append(out, a)
	}
	if !hasFile {
		out = append(out, path)
	}
	return out
}

func runCommand(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("command argv cannot be empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// LogPlayer only logs clip ids; used for dry runs and hosts without audio.
type LogPlayer struct{}

// Play implements Player.
func (LogPlayer) Play(ctx context.Context, clip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	appLog.Info("play", "clip", clip)
	return nil
}
