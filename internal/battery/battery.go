package battery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	appLog "speakclock/internal/log"
)

// Status represents current battery status for Web UI / API / console.
type Status struct {
	// Volts is the battery voltage after calibration.
	Volts float64 `json:"volts"`
	// ADCVolts is the raw voltage seen at the ADC input.
	ADCVolts float64 `json:"adc_volts"`
	// Percent is a linear estimate between the empty and full voltages.
	Percent int `json:"percent"`
	// Calibrated is false while the default divider ratio is used.
	Calibrated bool `json:"calibrated"`
}

// CalibrationSource supplies the current calibration. The persisted state
// store implements it; ok is false when nothing has been saved yet.
type CalibrationSource interface {
	Calibration() (cal Calibration, ok bool)
}

// Reader abstracts how we obtain battery information. There is a mock
// implementation for development and an I2C ADC implementation for boards.
type Reader interface {
	// Read returns the calibrated battery status.
	Read(ctx context.Context) (Status, error)
	// ReadADC returns the uncalibrated ADC input voltage, as needed by the
	// calibration dialog.
	ReadADC(ctx context.Context) (float64, error)
}

// Options configure a Reader.
type Options struct {
	I2CBus  string
	I2CAddr uint16
	// Channel is the single-ended ADC input, 0..3.
	Channel int
	// FullScale is the ADC input voltage at raw full scale. It is rounded up
	// to the next programmable range of the converter.
	FullScale  float64
	EmptyVolts float64
	FullVolts  float64
	// Calibration may be nil; DefaultCalibration is used then.
	Calibration CalibrationSource
}

const (
	// DefaultADCAddr is the ADS1115 address with ADDR tied to GND.
	DefaultADCAddr = 0x48

	regConversion = 0x00
	regConfig     = 0x01

	// Config register: start a single conversion, single-shot mode,
	// 128 samples/s, comparator disabled.
	cfgStart      = 0x8000
	cfgSingleEnd  = 0x4000 // MUX 1xx: AINx against GND
	cfgSingleShot = 0x0100
	cfgRate128    = 0x0080
	cfgCompOff    = 0x0003

	// conversionDelay covers one sample at 128 samples/s.
	conversionDelay = 9 * time.Millisecond
)

// pgaRanges are the programmable full-scale ranges, index = PGA bits.
var pgaRanges = [...]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}

// pga returns the smallest range covering fullScale and its register bits.
func pga(fullScale float64) (bits uint16, volts float64) {
	bits, volts = 0, pgaRanges[0]
	for i, r := range pgaRanges {
		if r >= fullScale {
			bits, volts = uint16(i), r
		}
	}
	return bits, volts
}

// singleShotConfig is the config register value that samples channel once.
func singleShotConfig(channel int, fullScale float64) uint16 {
	bits, _ := pga(fullScale)
	return cfgStart | cfgSingleEnd | uint16(channel&0x3)<<12 | bits<<9 |
		cfgSingleShot | cfgRate128 | cfgCompOff
}

func (o Options) withDefaults() Options {
	if o.Channel < 0 || o.Channel > 3 {
		o.Channel = 0
	}
	if o.I2CAddr == 0 {
		o.I2CAddr = DefaultADCAddr
	}
	if o.FullScale <= 0 {
		o.FullScale = 4.096
	}
	if o.EmptyVolts <= 0 {
		o.EmptyVolts = 3.3
	}
	if o.FullVolts <= o.EmptyVolts {
		o.FullVolts = 4.2
	}
	return o
}

// sampler returns one ADC input voltage.
type sampler func(ctx context.Context) (float64, error)

type reader struct {
	opts   Options
	sample sampler
}

// regConn is the register transport; *i2c.Dev satisfies it.
type regConn interface {
	Tx(w, r []byte) error
}

// i2cADC samples one single-ended input of an ADS1115-style converter. The
// 16-bit conversion register holds a signed big-endian sample; negative
// values are clamped to zero.
type i2cADC struct {
	channel int
	// fullScale is the programmed range in volts.
	fullScale float64
	config    uint16

	// open yields a connection and its closer for one sample. Replaced in
	// tests.
	open func() (regConn, io.Closer, error)
}

func newI2CADC(opts Options) *i2cADC {
	_, volts := pga(opts.FullScale)
	a := &i2cADC{
		channel:   opts.Channel,
		fullScale: volts,
		config:    singleShotConfig(opts.Channel, opts.FullScale),
	}
	a.open = func() (regConn, io.Closer, error) { return openBus(opts.I2CBus, opts.I2CAddr) }
	return a
}

func openBus(busName string, addr uint16) (regConn, io.Closer, error) {
	if runtime.GOOS != "linux" {
		return nil, nil, errors.New("battery: i2c reader unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, err
	}
	return &i2c.Dev{Bus: bus, Addr: addr}, bus, nil
}

func (a *i2cADC) sample(ctx context.Context) (float64, error) {
	dev, closer, err := a.open()
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	w := []byte{regConfig, byte(a.config >> 8), byte(a.config)}
	if err := dev.Tx(w, nil); err != nil {
		return 0, fmt.Errorf("battery: start conversion on AIN%d: %w", a.channel, err)
	}

	t := time.NewTimer(conversionDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
	}

	buf := make([]byte, 2)
	if err := dev.Tx([]byte{regConversion}, buf); err != nil {
		return 0, fmt.Errorf("battery: read conversion register: %w", err)
	}
	return rawToVolts(int16(binary.BigEndian.Uint16(buf)), a.fullScale), nil
}

func rawToVolts(raw int16, fullScale float64) float64 {
	if raw < 0 {
		raw = 0
	}
	return float64(raw) / 32767.0 * fullScale
}

// mockADC is used for demo/development. It wanders around a plausible
// divider voltage for a half-charged cell.
type mockADC struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (m *mockADC) sample(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return 2.25 + m.rnd.Float64()*0.2, nil
}

// NewMockReader constructs a Reader with a pseudo-random ADC.
func NewMockReader(opts Options) Reader {
	m := &mockADC{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	return &reader{opts: opts.withDefaults(), sample: m.sample}
}

// NewI2CReader constructs an I2C-backed Reader. The bus is opened per
// sample; nothing is touched until the first Read.
func NewI2CReader(opts Options) Reader {
	opts = opts.withDefaults()
	return &reader{opts: opts, sample: newI2CADC(opts).sample}
}

func (r *reader) ReadADC(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.sample(ctx)
}

func (r *reader) Read(ctx context.Context) (Status, error) {
	v, err := r.ReadADC(ctx)
	if err != nil {
		return Status{}, err
	}

	cal, ok := DefaultCalibration(), false
	if r.opts.Calibration != nil {
		if c, found := r.opts.Calibration.Calibration(); found {
			cal, ok = c, true
		}
	}
	volts := cal.Apply(v)

	return Status{
		Volts:      round3(volts),
		ADCVolts:   round3(v),
		Percent:    percent(volts, r.opts.EmptyVolts, r.opts.FullVolts),
		Calibrated: ok,
	}, nil
}

func percent(v, empty, full float64) int {
	p := (v - empty) / (full - empty) * 100
	return int(math.Round(math.Max(0, math.Min(100, p))))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// DefaultReader returns the Reader for driver ("i2c" or "mock").
//
// For "i2c" one test sample is taken; if it fails the mock reader is used so
// the Web UI and console keep working on hosts without the ADC.
func DefaultReader(driver string, opts Options) Reader {
	if strings.EqualFold(driver, "mock") || runtime.GOOS != "linux" {
		return NewMockReader(opts)
	}

	r := NewI2CReader(opts)
	if _, err := r.ReadADC(context.Background()); err != nil {
		appLog.Error("battery: i2c adc unavailable, using mock reader", err,
			"addr", fmt.Sprintf("0x%02x", opts.withDefaults().I2CAddr), "channel", opts.Channel)
		return NewMockReader(opts)
	}
	return r
}
