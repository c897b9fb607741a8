package player

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"speakclock/internal/battery"
	"speakclock/internal/model"
)

type recorder struct {
	clips []string
	at    []time.Time
	fail  map[string]error
}

func (r *recorder) Play(_ context.Context, clip string) error {
	r.clips = append(r.clips, clip)
	r.at = append(r.at, time.Now())
	return r.fail[clip]
}

func TestCommandPlayerResolveStaysBelowRoot(t *testing.T) {
	p := NewCommandPlayer("/srv/clips", nil, 1)
	require.Equal(t, filepath.Join("/srv/clips", "mp3", "0100.mp3"), p.Resolve("/mp3/0100.mp3"))
	require.Equal(t, filepath.Join("/srv/clips", "etc", "passwd"), p.Resolve("/../../etc/passwd"))
}

func TestCommandPlayerRunsDecoder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mp3"), 0o755))
	clipPath := filepath.Join(root, "mp3", "0100.mp3")
	require.NoError(t, os.WriteFile(clipPath, []byte("ID3"), 0o644))

	var got []string
	p := NewCommandPlayer(root, nil, 0.5)
	p.run = func(_ context.Context, argv []string) error {
		got = argv
		return nil
	}

	require.NoError(t, p.Play(context.Background(), "/mp3/0100.mp3"))
	require.Equal(t, []string{"mpg123", "-q", "-f", "16384", clipPath}, got)
}

func TestCommandPlayerAppendsFileWithoutToken(t *testing.T) {
	p := NewCommandPlayer("/r", []string{"aplay", "-q"}, 5)
	require.Equal(t, 1.0, p.Gain)
	require.Equal(t, []string{"aplay", "-q", "/r/x.wav"}, p.argv("/r/x.wav", p.Gain))
}

func TestCommandPlayerMissingClip(t *testing.T) {
	p := NewCommandPlayer(t.TempDir(), nil, 1)
	p.run = func(context.Context, []string) error {
		t.Fatal("decoder must not run for a missing clip")
		return nil
	}
	err := p.Play(context.Background(), "/mp3/nope.mp3")
	require.ErrorIs(t, err, ErrClipMissing)
}

func TestClampGain(t *testing.T) {
	require.Equal(t, GainMin, ClampGain(0))
	require.Equal(t, GainMax, ClampGain(3))
	require.Equal(t, 0.4, ClampGain(0.4))
}

func TestAnnouncerPausesAfterIndex(t *testing.T) {
	rec := &recorder{}
	a := &Announcer{Player: rec, Pause: 60 * time.Millisecond}
	p := model.Playlist{Clips: []string{"a", "b", "c"}, PauseAfter: 0}

	require.NoError(t, a.Play(context.Background(), p))
	require.Equal(t, []string{"a", "b", "c"}, rec.clips)
	require.GreaterOrEqual(t, rec.at[1].Sub(rec.at[0]), 60*time.Millisecond)
	require.Less(t, rec.at[2].Sub(rec.at[1]), 50*time.Millisecond)
}

func TestAnnouncerContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{fail: map[string]error{"b": boom}}
	a := &Announcer{Player: rec}

	err := a.Play(context.Background(), model.Playlist{Clips: []string{"a", "b", "c"}, PauseAfter: model.NoPause})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"a", "b", "c"}, rec.clips)
}

func TestAnnouncerStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	a := &Announcer{Player: rec, Pause: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := a.Play(ctx, model.Playlist{Clips: []string{"a", "b"}, PauseAfter: 0})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []string{"a"}, rec.clips)
}

func TestLogPlayer(t *testing.T) {
	require.NoError(t, LogPlayer{}.Play(context.Background(), "/mp3/0100.mp3"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, LogPlayer{}.Play(ctx, "x"))
}

// scriptedADC returns the next voltage on each read.
type scriptedADC struct {
	volts []float64
	errs  []error
	n     int
}

func (s *scriptedADC) ReadADC(context.Context) (float64, error) {
	i := s.n
	s.n++
	return s.volts[i], s.errs[i]
}

func TestVolumeKnobGain(t *testing.T) {
	adc := &scriptedADC{volts: []float64{0, 1.65, 5, -1}, errs: make([]error, 4)}
	k := NewVolumeKnob(adc, 0)
	require.InDelta(t, 3.3, k.MaxVolts, 1e-9)

	for _, want := range []float64{GainMin, 0.55, GainMax, GainMin} {
		g, err := k.Gain(context.Background())
		require.NoError(t, err)
		require.InDelta(t, want, g, 1e-9)
	}

	// The mock battery ADC can stand in for the knob.
	g, err := NewVolumeKnob(battery.NewMockReader(battery.Options{}), 3.3).Gain(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, g, GainMin)
	require.LessOrEqual(t, g, GainMax)
}

func TestVolumeSampledPerClip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mp3"), 0o755))
	for _, name := range []string{"09_Uhr.mp3", "05.mp3", "06.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "mp3", name), []byte("ID3"), 0o644))
	}

	adc := &scriptedADC{
		volts: []float64{0, 1.65, 0},
		errs:  []error{nil, nil, errors.New("nack")},
	}
	p := NewCommandPlayer(root, nil, 0.5)
	p.Volume = NewVolumeKnob(adc, 3.3)
	var scales []string
	p.run = func(_ context.Context, argv []string) error {
		scales = append(scales, argv[3])
		return nil
	}

	a := &Announcer{Player: p}
	pl := model.Playlist{Clips: []string{"/mp3/09_Uhr.mp3", "/mp3/05.mp3", "/mp3/06.mp3"}, PauseAfter: model.NoPause}
	require.NoError(t, a.Play(context.Background(), pl))

	// Knob turned up between clips; a failed read falls back to the fixed gain.
	require.Equal(t, []string{"3276", "18022", "16384"}, scales)
}
