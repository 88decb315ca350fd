package audiograph

import (
	"math"
)

// StereoPannerNode pans a stereo signal using the equal-power law.
type StereoPannerNode struct {
	baseNode
	pan float64
}

var _ Node = (*StereoPannerNode)(nil)

func (c *Context) NewStereoPannerNode() *StereoPannerNode {
	n := &StereoPannerNode{}
	n.init(c, n)
	return n
}

// SetPan sets the position in [-1, 1]; out-of-range values are clamped.
func (n *StereoPannerNode) SetPan(v float64) {
	v = clamp(v, -1, 1)
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	n.pan = v
}

func (n *StereoPannerNode) Pan() float64 {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	return n.pan
}

func (n *StereoPannerNode) process(_ Quantum, in, out Block) {
	x := n.pan
	if x <= 0 {
		x += 1
	}
	gainL := math.Cos(x * math.Pi / 2)
	gainR := math.Sin(x * math.Pi / 2)

	inL, inR := in[0], in[1]
	outL, outR := out[0], out[1]
	for i := range outL {
		if n.pan <= 0 {
			outL[i] = inL[i] + inR[i]*gainL
			outR[i] = inR[i] * gainR
		} else {
			outL[i] = inL[i] * gainL
			outR[i] = inR[i] + inL[i]*gainR
		}
	}
}

func clamp(v, min, max float64) float64 {
	switch {
	case math.IsNaN(v):
		return min
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
