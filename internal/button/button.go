// Package button watches the active-low trigger button on a GPIO pin.
package button

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	appLog "speakclock/internal/log"
)

// Pin is the subset of gpio.PinIO the watcher needs.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// Open looks up a pin by periph name, e.g. "GPIO17".
func Open(name string) (Pin, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("button: gpio %s not found", name)
	}
	return p, nil
}

// pollInterval bounds how long a cancelled watcher keeps waiting.
const pollInterval = 200 * time.Millisecond

// Watcher calls a function on each debounced press.
type Watcher struct {
	pin      Pin
	debounce time.Duration
	now      func() time.Time
}

// NewWatcher returns a Watcher on pin. Presses closer together than
// debounce are treated as contact bounce.
func NewWatcher(pin Pin, debounce time.Duration) *Watcher {
	return &Watcher{pin: pin, debounce: debounce, now: time.Now}
}

// Run blocks until ctx is done, calling onPress synchronously for every
// press. Presses during onPress are dropped.
func (w *Watcher) Run(ctx context.Context, onPress func(context.Context)) error {
	if err := w.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("button: configure input: %w", err)
	}

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if !w.pin.WaitForEdge(pollInterval) {
			continue
		}
		if w.pin.Read() != gpio.Low {
			continue
		}
		now := w.now()
		if !last.IsZero() && now.Sub(last) < w.debounce {
			continue
		}
		last = now

		appLog.Debug("button: press")
		onPress(ctx)
		// Restart the bounce window after a long announcement too.
		last = w.now()
	}
}
