package effects

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects/pitch"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

const (
	// pitchShiftBlockFrames is the amount of frames the WSOLA stage works
	// on at once; it is also the latency of the node.
	pitchShiftBlockFrames = 4096

	MinPitchShiftSemitones = -24
	MaxPitchShiftSemitones = 24
)

// PitchShiftNode changes the pitch of the audio without changing its tempo.
type PitchShiftNode struct {
	baseNode
	shifters  []*pitch.PitchShifter
	semitones float64
	blocks    []*blockBuffer
}

var _ Node = (*PitchShiftNode)(nil)

func newPitchShifters(sampleRate float64) ([]*pitch.PitchShifter, error) {
	result := make([]*pitch.PitchShifter, audiograph.NumChannels)
	for ch := range result {
		s, err := pitch.NewPitchShifter(sampleRate)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a pitch shifter: %w", err)
		}
		result[ch] = s
	}
	return result, nil
}

func (rt *Runtime) NewPitchShiftNode(semitones float64) (*PitchShiftNode, error) {
	shifters, err := newPitchShifters(rt.SampleRate())
	if err != nil {
		return nil, err
	}
	n := &PitchShiftNode{
		shifters: shifters,
		blocks:   make([]*blockBuffer, audiograph.NumChannels),
	}
	for ch := range n.blocks {
		n.blocks[ch] = newBlockBuffer(pitchShiftBlockFrames)
	}
	n.init(rt, n)
	if err := n.SetSemitones(semitones); err != nil {
		return nil, err
	}
	return n, nil
}

// SetSemitones sets the pitch shift in semitones within
// [MinPitchShiftSemitones, MaxPitchShiftSemitones].
func (n *PitchShiftNode) SetSemitones(semitones float64) error {
	if semitones < MinPitchShiftSemitones || semitones > MaxPitchShiftSemitones {
		return fmt.Errorf("the pitch shift %v is out of range [%d, %d]", semitones, MinPitchShiftSemitones, MaxPitchShiftSemitones)
	}
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	for _, s := range n.shifters {
		if err := s.SetPitchSemitones(semitones); err != nil {
			return fmt.Errorf("unable to set the pitch shift to %v semitones: %w", semitones, err)
		}
	}
	n.semitones = semitones
	return nil
}

func (n *PitchShiftNode) Semitones() float64 {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	return n.semitones
}

func (n *PitchShiftNode) process(_ audiograph.Quantum, in, out audiograph.Block) {
	for ch := range out {
		shifter := n.shifters[ch]
		n.blocks[ch].process(in[ch], out[ch], shifter.ProcessInPlace)
	}
}

// blockBuffer adapts a processor of fixed-size blocks to the quantum size
// of the graph, delaying the signal by one block.
type blockBuffer struct {
	input   []float64
	output  []float64
	outRead int
}

func newBlockBuffer(size int) *blockBuffer {
	return &blockBuffer{
		input:  make([]float64, 0, size),
		output: make([]float64, size),
	}
}

func (b *blockBuffer) process(in, out []float64, fn func([]float64)) {
	size := cap(b.input)
	for i, v := range in {
		out[i] = b.output[b.outRead]
		b.outRead++
		b.input = append(b.input, v)
		if len(b.input) == size {
			fn(b.input)
			copy(b.output, b.input)
			b.input = b.input[:0]
			b.outRead = 0
		}
	}
}
