package effects

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/observability"
)

const (
	minReverbDecay = 100 * time.Millisecond
	maxReverbDecay = 10 * time.Second

	// convolution partitions start at 2^7 frames
	reverbMinBlockOrder = 7
)

// ReverbNode is a convolution reverb with a synthetic impulse response.
//
// The impulse response is generated asynchronously: until the first one is
// ready the node passes the signal through dry, and when the decay changes
// the previous response stays in use until the new one is ready.
type ReverbNode struct {
	baseNode
	decay      time.Duration
	wet        float64
	convolvers []*reverb.ConvolutionReverb
	generation uint64
	readyCh    chan struct{}
	err        error
	closed     bool
}

var _ Node = (*ReverbNode)(nil)

func newConvolvers(ir [][]float64) ([]*reverb.ConvolutionReverb, error) {
	result := make([]*reverb.ConvolutionReverb, len(ir))
	for ch, kernel := range ir {
		c, err := reverb.NewConvolutionReverb(kernel, reverbMinBlockOrder)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a convolution reverb: %w", err)
		}
		result[ch] = c
	}
	return result, nil
}

// generateImpulseResponse returns a stereo impulse response: decorrelated
// noise decaying exponentially down to -60 dB at the decay time.
func generateImpulseResponse(sampleRate float64, decay time.Duration) [][]float64 {
	length := int(decay.Seconds() * sampleRate)
	if length < 1 {
		length = 1
	}
	result := make([][]float64, audiograph.NumChannels)
	for ch := range result {
		rng := rand.New(rand.NewPCG(uint64(length), uint64(ch)))
		kernel := make([]float64, length)
		for i := range kernel {
			t := float64(i) / float64(length)
			envelope := math.Pow(10, -3*t)
			kernel[i] = (rng.Float64()*2 - 1) * envelope
		}
		result[ch] = kernel
	}
	return result
}

func clampDecay(decay time.Duration) time.Duration {
	return min(max(decay, minReverbDecay), maxReverbDecay)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}

func (rt *Runtime) NewReverbNode(ctx context.Context, decay time.Duration, wet float64) *ReverbNode {
	n := &ReverbNode{
		wet: clampUnit(wet),
	}
	n.init(rt, n)

	rt.locker.Lock()
	defer rt.locker.Unlock()
	n.regenerateLocked(ctx, clampDecay(decay))
	return n
}

// Ready waits until the impulse response for the current decay is in use.
func (n *ReverbNode) Ready(ctx context.Context) error {
	n.runtime.locker.Lock()
	ch := n.readyCh
	n.runtime.locker.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}

		n.runtime.locker.Lock()
		if ch == n.readyCh {
			err := n.err
			n.runtime.locker.Unlock()
			return err
		}
		// the decay was changed meanwhile
		ch = n.readyCh
		n.runtime.locker.Unlock()
	}
}

// IsReady reports if the impulse response for the current decay is in use.
func (n *ReverbNode) IsReady() bool {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	select {
	case <-n.readyCh:
		return true
	default:
		return false
	}
}

// SetParams updates the reverb; a decay change regenerates the impulse
// response, a wet change applies immediately.
func (n *ReverbNode) SetParams(ctx context.Context, decay time.Duration, wet float64) {
	decay = clampDecay(decay)
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	n.wet = clampUnit(wet)
	for _, c := range n.convolvers {
		c.SetWetDry(n.wet, 1-n.wet)
	}
	if decay != n.decay && !n.closed {
		n.regenerateLocked(ctx, decay)
	}
}

func (n *ReverbNode) Params() (time.Duration, float64) {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	return n.decay, n.wet
}

// Close disconnects the node and drops the impulse response. A response
// still being generated is discarded, and Ready returns ErrNodeClosed.
func (n *ReverbNode) Close() {
	n.Disconnect()

	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.generation++
	n.convolvers = nil
	n.err = ErrNodeClosed
	readyCh := make(chan struct{})
	close(readyCh)
	n.readyCh = readyCh
}

func (n *ReverbNode) regenerateLocked(ctx context.Context, decay time.Duration) {
	n.decay = decay
	n.generation++
	generation := n.generation
	readyCh := make(chan struct{})
	n.readyCh = readyCh
	sampleRate := n.runtime.SampleRate()

	observability.Go(ctx, func() {
		logger.Debugf(ctx, "generating a reverb impulse response for decay %v", decay)
		convolvers, err := newConvolvers(generateImpulseResponse(sampleRate, decay))

		n.runtime.locker.Lock()
		defer n.runtime.locker.Unlock()
		defer close(readyCh)
		if generation != n.generation {
			logger.Debugf(ctx, "the impulse response for decay %v is outdated", decay)
			return
		}
		n.err = err
		if err != nil {
			logger.Errorf(ctx, "unable to prepare the reverb: %v", err)
		} else {
			for _, c := range convolvers {
				c.SetWetDry(n.wet, 1-n.wet)
			}
			n.convolvers = convolvers
		}
	})
}

func (n *ReverbNode) process(_ audiograph.Quantum, in, out audiograph.Block) {
	copyBlock(out, in)
	if n.convolvers == nil {
		return
	}
	for ch := range out {
		if err := n.convolvers[ch].ProcessInPlace(out[ch]); err != nil {
			copy(out[ch], in[ch])
		}
	}
}
