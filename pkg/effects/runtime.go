// Package effects is an audio effects runtime rendering its own graph of
// nodes inside an audiograph.Context. Its nodes cannot be connected to
// audiograph nodes directly; the two graphs meet only at bridges
// (see InputBridge and OutputBridge).
package effects

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

var (
	ErrRuntimeUnavailable = errors.New("the effects runtime is unavailable")
	ErrContextMismatch    = errors.New("the node belongs to another audio context")
)

// Runtime is an effects runtime bound to a single audiograph.Context.
type Runtime struct {
	audioCtx *audiograph.Context

	// locker guards the topology and parameters of every node of the
	// runtime. It is taken inside the render pass of audioCtx, so it must
	// never be held while calling into audioCtx.
	locker sync.Mutex
}

func (rt *Runtime) AudioContext() *audiograph.Context {
	return rt.audioCtx
}

func (rt *Runtime) SampleRate() float64 {
	return rt.audioCtx.SampleRate()
}

// Loader initializes a Runtime on first use and returns the same Runtime
// for the same audiograph.Context afterwards. A failed initialization is
// not retried for that context.
type Loader struct {
	// Init is an optional check executed once per context before
	// the Runtime becomes usable.
	Init func(ctx context.Context, audioCtx *audiograph.Context) error

	locker   sync.Mutex
	audioCtx *audiograph.Context
	runtime  *Runtime
	err      error
}

func NewLoader() *Loader {
	return &Loader{
		Init: probeProcessors,
	}
}

func (l *Loader) Load(ctx context.Context, audioCtx *audiograph.Context) (_ret *Runtime, _err error) {
	logger.Tracef(ctx, "Load")
	defer func() { logger.Tracef(ctx, "/Load: %v", _err) }()

	if audioCtx == nil {
		return nil, fmt.Errorf("%w: no audio context", ErrRuntimeUnavailable)
	}

	l.locker.Lock()
	defer l.locker.Unlock()
	if l.audioCtx == audioCtx {
		return l.runtime, l.err
	}

	l.audioCtx = audioCtx
	l.runtime, l.err = nil, nil
	if l.Init != nil {
		if err := l.Init(ctx, audioCtx); err != nil {
			l.err = fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
			logger.Errorf(ctx, "unable to initialize the effects runtime: %v", err)
			return nil, l.err
		}
	}
	l.runtime = &Runtime{audioCtx: audioCtx}
	logger.Debugf(ctx, "initialized the effects runtime at %v Hz", audioCtx.SampleRate())
	return l.runtime, nil
}

// probeProcessors makes sure every effect can be constructed at the sample
// rate of the context.
func probeProcessors(_ context.Context, audioCtx *audiograph.Context) error {
	sampleRate := audioCtx.SampleRate()
	if _, err := newPitchShifters(sampleRate); err != nil {
		return err
	}
	if _, err := newCompressors(sampleRate); err != nil {
		return err
	}
	if _, err := newConvolvers(generateImpulseResponse(sampleRate, minReverbDecay)); err != nil {
		return err
	}
	return nil
}
