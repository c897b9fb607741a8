package player

import (
	"context"
	"math"
)

// GainSource supplies the output gain at the moment a clip starts.
type GainSource interface {
	Gain(ctx context.Context) (float64, error)
}

// ADC reads one analog input in volts; battery.Reader satisfies it.
type ADC interface {
	ReadADC(ctx context.Context) (float64, error)
}

// VolumeKnob maps a potentiometer wired across 0..MaxVolts onto
// [GainMin, GainMax].
type VolumeKnob struct {
	ADC      ADC
	MaxVolts float64
}

// NewVolumeKnob returns a knob on adc. A non-positive maxVolts means 3.3 V.
func NewVolumeKnob(adc ADC, maxVolts float64) *VolumeKnob {
	if maxVolts <= 0 {
		maxVolts = 3.3
	}
	return &VolumeKnob{ADC: adc, MaxVolts: maxVolts}
}

// Gain implements GainSource.
func (k *VolumeKnob) Gain(ctx context.Context) (float64, error) {
	v, err := k.ADC.ReadADC(ctx)
	if err != nil {
		return 0, err
	}
	norm := math.Max(0, math.Min(1, v/k.MaxVolts))
	return GainMin + (GainMax-GainMin)*norm, nil
}
