// Package battery reads the battery voltage through an ADC and maps it to
// the real cell voltage with a quadratic calibration curve.
package battery

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDividerRatio is the 68k/100k divider measured across 100k.
const DefaultDividerRatio = 1.68

// ErrSingular is returned by Fit when the points do not determine a curve.
var ErrSingular = errors.New("battery: calibration regression is singular")

// Calibration maps ADC volts to battery volts: A*v² + B*v + C.
type Calibration struct {
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`
	C float64 `yaml:"c" json:"c"`
}

// DefaultCalibration is the plain divider ratio.
func DefaultCalibration() Calibration {
	return Calibration{B: DefaultDividerRatio}
}

// Apply converts an ADC voltage.
func (c Calibration) Apply(v float64) float64 {
	return c.A*v*v + c.B*v + c.C
}

func (c Calibration) String() string {
	return fmt.Sprintf("U_Bat = %.6f * U_ADC^2 + %.6f * U_ADC + %.6f", c.A, c.B, c.C)
}

// Point is one calibration sample.
type Point struct {
	ADC     float64 `json:"adc"`
	Battery float64 `json:"battery"`
}

// CalibrationPoints is the number of samples the calibration dialog takes.
const CalibrationPoints = 5

const pivotEpsilon = 1e-9

// Fit computes the least-squares quadratic through points by solving the
// 3x3 normal equations with Gauss-Jordan elimination and partial pivoting.
func Fit(points []Point) (Calibration, error) {
	if len(points) < 3 {
		return Calibration{}, fmt.Errorf("battery: need at least 3 points, got %d", len(points))
	}

	var sx, sx2, sx3, sx4, sy, sxy, sx2y float64
	for _, p := range points {
		x, y := p.ADC, p.Battery
		x2 := x * x
		sx += x
		sx2 += x2
		sx3 += x2 * x
		sx4 += x2 * x2
		sy += y
		sxy += x * y
		sx2y += x2 * y
	}

	m := [3][4]float64{
		{sx4, sx3, sx2, sx2y},
		{sx3, sx2, sx, sxy},
		{sx2, sx, float64(len(points)), sy},
	}

	for col := 0; col < 3; col++ {
		pivot := col
		maxv := math.Abs(m[col][col])
		for r := col + 1; r < 3; r++ {
			if v := math.Abs(m[r][col]); v > maxv {
				maxv, pivot = v, r
			}
		}
		if maxv < pivotEpsilon {
			return Calibration{}, ErrSingular
		}
		m[col], m[pivot] = m[pivot], m[col]

		div := m[col][col]
		for c := col; c < 4; c++ {
			m[col][c] /= div
		}
		for r := 0; r < 3; r++ {
			if r == col {
				continue
			}
			f := m[r][col]
			for c := col; c < 4; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	return Calibration{A: m[0][3], B: m[1][3], C: m[2][3]}, nil
}
