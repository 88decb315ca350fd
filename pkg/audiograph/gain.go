package audiograph

// GainNode multiplies its summed input by a gain value.
type GainNode struct {
	baseNode
	gain float64
}

var _ Node = (*GainNode)(nil)

func (c *Context) NewGainNode() *GainNode {
	n := &GainNode{gain: 1}
	n.init(c, n)
	return n
}

// SetGain applies the gain immediately, starting from the next quantum.
func (n *GainNode) SetGain(v float64) {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	n.gain = v
}

func (n *GainNode) Gain() float64 {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	return n.gain
}

func (n *GainNode) process(_ Quantum, in, out Block) {
	for ch := range out {
		for i, v := range in[ch] {
			out[ch][i] = v * n.gain
		}
	}
}
