// Package trackprocessor implements the fixed signal chain of a track:
//
//	source -> gain -> panner -> [effects] -> analyser -> master
package trackprocessor

import (
	"errors"
	"math"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/effectchain"
	"github.com/xaionaro-go/multitrack/pkg/effects"
)

var ErrDisposed = errors.New("the track processor is disposed")

type Processor struct {
	loader *effects.Loader

	locker   sync.Mutex
	disposed bool
	source   *audiograph.MediaElementSourceNode
	gain     *audiograph.GainNode
	panner   *audiograph.StereoPannerNode
	analyser *audiograph.AnalyserNode
	chain    *effectchain.Chain
	volume   float64
	muted    bool
}

// New builds the chain of a track in the context of master and connects
// it to master.
func New(master *audiograph.GainNode, loader *effects.Loader) (*Processor, error) {
	audioCtx := master.Context()
	p := &Processor{
		loader:   loader,
		gain:     audioCtx.NewGainNode(),
		panner:   audioCtx.NewStereoPannerNode(),
		analyser: audioCtx.NewAnalyserNode(),
		volume:   1,
	}
	for _, link := range [][2]audiograph.Node{
		{p.gain, p.panner},
		{p.panner, p.analyser},
		{p.analyser, master},
	} {
		if err := link[0].Connect(link[1]); err != nil {
			p.disconnectFixed()
			return nil, err
		}
	}
	return p, nil
}

// ConnectSource attaches the audio of a media element. Only the first call
// has an effect.
func (p *Processor) ConnectSource(stream audiograph.MediaStream) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	if p.source != nil {
		return nil
	}
	source := p.gain.Context().NewMediaElementSourceNode(stream)
	if err := source.Connect(p.gain); err != nil {
		return err
	}
	p.source = source
	return nil
}

// SetVolume sets the volume, clamped into [0, 1]. While muted the value is
// only remembered.
func (p *Processor) SetVolume(v float64) {
	v = clampRange(v, 0, 1)
	p.locker.Lock()
	defer p.locker.Unlock()
	p.volume = v
	if !p.muted {
		p.gain.SetGain(v)
	}
}

// Volume returns the last set volume, regardless of muting.
func (p *Processor) Volume() float64 {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.volume
}

// SetPan sets the stereo position, clamped into [-1, 1].
func (p *Processor) SetPan(v float64) {
	p.panner.SetPan(clampRange(v, -1, 1))
}

func (p *Processor) Pan() float64 {
	return p.panner.Pan()
}

func (p *Processor) Mute() {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.muted = true
	p.gain.SetGain(0)
}

// Unmute restores the last set volume.
func (p *Processor) Unmute() {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.muted = false
	p.gain.SetGain(p.volume)
}

func (p *Processor) IsMuted() bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.muted
}

// FrequencyData is the spectrum of the output of the track,
// see audiograph.AnalyserNode.
func (p *Processor) FrequencyData() []uint8 {
	return p.analyser.FrequencyData()
}

// AverageLevel is the level of the output of the track in [0, 1].
func (p *Processor) AverageLevel() float64 {
	return p.analyser.AverageLevel()
}

// EffectChain returns the effect chain of the track; the chain takes over
// the link between the panner and the analyser on the first call.
func (p *Processor) EffectChain() (*effectchain.Chain, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.disposed {
		return nil, ErrDisposed
	}
	if p.chain == nil {
		p.chain = effectchain.New(p.loader, p.panner, p.analyser)
	}
	return p.chain, nil
}

// ExistingEffectChain returns the effect chain only if it was already
// created by EffectChain.
func (p *Processor) ExistingEffectChain() *effectchain.Chain {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.chain
}

// Dispose tears the chain down: the effects first, then the source, then
// the fixed nodes. It is idempotent.
func (p *Processor) Dispose() error {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.disposed {
		return nil
	}
	p.disposed = true

	var mErr *multierror.Error
	if p.chain != nil {
		if err := p.chain.Dispose(); err != nil && !errors.Is(err, audiograph.ErrClosed) {
			mErr = multierror.Append(mErr, err)
		}
		p.chain = nil
	}
	if p.source != nil {
		p.source.Disconnect()
		p.source = nil
	}
	p.disconnectFixed()
	return mErr.ErrorOrNil()
}

func (p *Processor) disconnectFixed() {
	p.gain.Disconnect()
	p.panner.Disconnect()
	p.analyser.Disconnect()
}

// Nodes returns the fixed nodes of the chain, for inspection.
func (p *Processor) Nodes() (*audiograph.GainNode, *audiograph.StereoPannerNode, *audiograph.AnalyserNode) {
	return p.gain, p.panner, p.analyser
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return min(max(v, lo), hi)
}
