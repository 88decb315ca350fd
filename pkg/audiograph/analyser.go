package audiograph

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	DefaultFFTSize = 2048

	analyserMinDecibels = -100.0
	analyserMaxDecibels = -30.0
)

// AnalyserNode passes its input through unchanged while keeping the latest
// FFTSize frames (mixed down to mono) for visualization.
type AnalyserNode struct {
	baseNode
	ring []float64
	pos  int
}

var _ Node = (*AnalyserNode)(nil)

func (c *Context) NewAnalyserNode() *AnalyserNode {
	n := &AnalyserNode{
		ring: make([]float64, DefaultFFTSize),
	}
	n.init(c, n)
	return n
}

// FrequencyBinCount is the length of the result of FrequencyData.
func (n *AnalyserNode) FrequencyBinCount() int {
	return len(n.ring) / 2
}

func (n *AnalyserNode) process(_ Quantum, in, out Block) {
	copyBlock(out, in)
	size := len(n.ring)
	inL, inR := in[0], in[1]
	for i := range inL {
		n.ring[n.pos] = (inL[i] + inR[i]) / 2
		n.pos = (n.pos + 1) % size
	}
}

// TimeDomainData returns the latest frames in chronological order.
func (n *AnalyserNode) TimeDomainData() []float64 {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	size := len(n.ring)
	result := make([]float64, size)
	for i := range result {
		result[i] = n.ring[(n.pos+i)%size]
	}
	return result
}

// FrequencyData returns the magnitude spectrum of the latest frames, where
// each bin is scaled into [0, 255] linearly between -100 dB and -30 dB.
func (n *AnalyserNode) FrequencyData() []uint8 {
	samples := n.TimeDomainData()
	window.Apply(samples, window.Blackman)
	spectrum := fft.FFTReal(samples)

	size := float64(len(samples))
	result := make([]uint8, len(samples)/2)
	for i := range result {
		magnitude := cmplx.Abs(spectrum[i]) / size
		db := analyserMinDecibels
		if magnitude > 0 {
			db = 20 * math.Log10(magnitude)
		}
		scaled := 255 * (db - analyserMinDecibels) / (analyserMaxDecibels - analyserMinDecibels)
		result[i] = uint8(clamp(scaled, 0, 255))
	}
	return result
}

// AverageLevel is the mean of FrequencyData normalized into [0, 1].
func (n *AnalyserNode) AverageLevel() float64 {
	data := n.FrequencyData()
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum / float64(len(data)) / 255
}
