// Package fourier fills gaps by extending the tonal part of the signal
// around the gap.
package fourier

import (
	"math"

	"github.com/brettbuddin/fourier"
	"github.com/xaionaro-go/multitrack/pkg/interpolation"
)

const (
	// MaxWindowSize caps the amount of samples analyzed on each side.
	MaxWindowSize = 1024

	// MinRequiredSamples is the shortest fragment worth analyzing;
	// shorter fragments yield a silent gap.
	MinRequiredSamples = 4

	// SieveSensitivity is how many times a bin must exceed the mean
	// magnitude to be considered tonal.
	SieveSensitivity = 2.5
)

// Interpolator is a spectral-sieve gap filler:
//   - the last (first) samples before (after) the gap are transformed;
//   - the local maxima of the spectra above the noise floor are kept;
//   - both sets of partials are synthesized across the gap;
//   - the two syntheses are crossfaded with a smoothstep curve and the
//     edges are trend-corrected to match the neighboring samples exactly.
type Interpolator struct{}

var _ interpolation.Interpolator = (*Interpolator)(nil)

func New() *Interpolator {
	return &Interpolator{}
}

func (*Interpolator) Interpolate(before, after []float64, gapLen int) []float64 {
	result := make([]float64, gapLen)
	if gapLen == 0 || len(before) < MinRequiredSamples || len(after) < MinRequiredSamples {
		return result
	}

	n := powerOfTwoFloor(min(len(before), len(after), MaxWindowSize))
	tail := before[len(before)-n:]
	head := after[:n]

	// the past is projected forward from the end of the tail, the future
	// is projected backward from the start of the head
	forward := analyze(tail).synthesize(n, gapLen)
	backward := analyze(head).synthesize(-gapLen, gapLen)

	startOffset := forward[0] - tail[n-1]
	endOffset := backward[gapLen-1] - head[0]
	for i := range result {
		t := float64(i+1) / float64(gapLen+1)
		w := t * t * (3 - 2*t)
		result[i] = (1-w)*(forward[i]-startOffset) + w*(backward[i]-endOffset)
	}
	return result
}

type partial struct {
	bin       int
	amplitude float64
	phase     float64
}

type spectralModel struct {
	size     int
	dc       float64
	partials []partial
}

func analyze(samples []float64) spectralModel {
	n := len(samples)
	model := spectralModel{size: n}

	coeffs := make([]complex128, n)
	for i, v := range samples {
		coeffs[i] = complex(v, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return model
	}

	magnitudes := make([]float64, n)
	var mean float64
	for i, c := range coeffs {
		magnitudes[i] = math.Hypot(real(c), imag(c))
		mean += magnitudes[i]
	}
	threshold := mean / float64(n) * SieveSensitivity

	model.dc = real(coeffs[0]) / float64(n)
	for i := 1; i < n/2; i++ {
		m := magnitudes[i]
		if m <= threshold || m <= magnitudes[i-1] || m <= magnitudes[i+1] {
			continue
		}
		model.partials = append(model.partials, partial{
			bin: i,
			// a two-sided spectrum splits the energy of a real partial
			amplitude: 2 * m / float64(n),
			phase:     math.Atan2(imag(coeffs[i]), real(coeffs[i])),
		})
	}
	return model
}

// synthesize renders count samples of the model starting at sample index
// start relative to the analyzed window.
func (m spectralModel) synthesize(start, count int) []float64 {
	result := make([]float64, count)
	if m.size == 0 {
		return result
	}
	for i := range result {
		t := float64(start + i)
		v := m.dc
		for _, p := range m.partials {
			v += p.amplitude * math.Cos(2*math.Pi*float64(p.bin)*t/float64(m.size)+p.phase)
		}
		result[i] = v
	}
	return result
}

func powerOfTwoFloor(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
