package effects

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

const (
	MinCompressorRatio = 1
	MaxCompressorRatio = 100
)

// CompressorNode is a dynamic range compressor; the channels are
// compressed independently.
type CompressorNode struct {
	baseNode
	compressors []*dynamics.Compressor
}

var _ Node = (*CompressorNode)(nil)

func newCompressors(sampleRate float64) ([]*dynamics.Compressor, error) {
	result := make([]*dynamics.Compressor, audiograph.NumChannels)
	for ch := range result {
		c, err := dynamics.NewCompressor(sampleRate)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a compressor: %w", err)
		}
		// the track volume is controlled by the mixer only
		if err := c.SetAutoMakeup(false); err != nil {
			return nil, fmt.Errorf("unable to disable the automatic makeup gain: %w", err)
		}
		result[ch] = c
	}
	return result, nil
}

func (rt *Runtime) NewCompressorNode(threshold, ratio float64) (*CompressorNode, error) {
	compressors, err := newCompressors(rt.SampleRate())
	if err != nil {
		return nil, err
	}
	n := &CompressorNode{compressors: compressors}
	n.init(rt, n)
	if err := n.SetParams(threshold, ratio); err != nil {
		return nil, err
	}
	return n, nil
}

// SetParams sets the threshold (in dBFS) and the ratio; the ratio is
// clamped into [MinCompressorRatio, MaxCompressorRatio].
func (n *CompressorNode) SetParams(threshold, ratio float64) error {
	ratio = min(max(ratio, MinCompressorRatio), MaxCompressorRatio)
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	for _, c := range n.compressors {
		if err := c.SetThreshold(threshold); err != nil {
			return fmt.Errorf("unable to set the threshold to %v: %w", threshold, err)
		}
		if err := c.SetRatio(ratio); err != nil {
			return fmt.Errorf("unable to set the ratio to %v: %w", ratio, err)
		}
	}
	return nil
}

func (n *CompressorNode) Params() (threshold, ratio float64) {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	return n.compressors[0].Threshold(), n.compressors[0].Ratio()
}

func (n *CompressorNode) process(_ audiograph.Quantum, in, out audiograph.Block) {
	copyBlock(out, in)
	for ch := range out {
		n.compressors[ch].ProcessInPlace(out[ch])
	}
}
