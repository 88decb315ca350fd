package effects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

type constStream struct {
	value float64
}

func (s constStream) RenderTo(dst audiograph.Block) {
	for ch := range dst {
		for i := range dst[ch] {
			dst[ch][i] = s.value
		}
	}
}

// bridgedGraph renders source -> in-bridge -> ... -> out-bridge -> destination.
type bridgedGraph struct {
	audioCtx *audiograph.Context
	runtime  *Runtime
	in       *InputBridge
	out      *OutputBridge
}

func newBridgedGraph(t *testing.T, value float64) *bridgedGraph {
	audioCtx := audiograph.NewContext(audiograph.DefaultSampleRate, audiograph.DefaultQuantumFrames)
	rt, err := NewLoader().Load(context.Background(), audioCtx)
	require.NoError(t, err)

	src := audioCtx.NewMediaElementSourceNode(constStream{value: value})
	nativeIn := audioCtx.NewBridgeNode()
	nativeOut := audioCtx.NewBridgeNode()
	require.NoError(t, src.Connect(nativeIn))
	require.NoError(t, nativeOut.Connect(audioCtx.Destination()))

	in, err := rt.NewInputBridge(nativeIn)
	require.NoError(t, err)
	out, err := rt.NewOutputBridge(nativeOut)
	require.NoError(t, err)
	return &bridgedGraph{audioCtx: audioCtx, runtime: rt, in: in, out: out}
}

func TestLoaderReturnsSameRuntime(t *testing.T) {
	ctx := context.Background()
	audioCtx := audiograph.NewContext(audiograph.DefaultSampleRate, audiograph.DefaultQuantumFrames)
	l := NewLoader()
	rt0, err := l.Load(ctx, audioCtx)
	require.NoError(t, err)
	rt1, err := l.Load(ctx, audioCtx)
	require.NoError(t, err)
	assert.Same(t, rt0, rt1)

	other := audiograph.NewContext(audiograph.DefaultSampleRate, audiograph.DefaultQuantumFrames)
	rt2, err := l.Load(ctx, other)
	require.NoError(t, err)
	assert.NotSame(t, rt0, rt2)
}

func TestLoaderFailure(t *testing.T) {
	ctx := context.Background()
	audioCtx := audiograph.NewContext(audiograph.DefaultSampleRate, audiograph.DefaultQuantumFrames)
	calls := 0
	l := &Loader{Init: func(context.Context, *audiograph.Context) error {
		calls++
		return errors.New("no wasm for you")
	}}
	_, err := l.Load(ctx, audioCtx)
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	_, err = l.Load(ctx, audioCtx)
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Equal(t, 1, calls)
}

func TestBridgeMustShareContext(t *testing.T) {
	g := newBridgedGraph(t, 0)
	other := audiograph.NewContext(audiograph.DefaultSampleRate, audiograph.DefaultQuantumFrames)
	_, err := g.runtime.NewInputBridge(other.NewBridgeNode())
	assert.ErrorIs(t, err, ErrContextMismatch)
	_, err = g.runtime.NewOutputBridge(other.NewBridgeNode())
	assert.ErrorIs(t, err, ErrContextMismatch)
}

func TestBridgesPassThrough(t *testing.T) {
	g := newBridgedGraph(t, 0.25)
	require.NoError(t, g.in.Connect(g.out))

	out, err := g.audioCtx.Render(audiograph.DefaultQuantumFrames)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, out[0][10], 1e-9)
	assert.InDelta(t, 0.25, out[1][10], 1e-9)

	g.out.Close()
	out, err = g.audioCtx.Render(audiograph.DefaultQuantumFrames)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0][10])
}

func TestNodeTopology(t *testing.T) {
	g := newBridgedGraph(t, 0)
	comp, err := g.runtime.NewCompressorNode(-20, 4)
	require.NoError(t, err)
	require.NoError(t, g.in.Connect(comp))
	require.NoError(t, g.in.Connect(comp))
	require.NoError(t, comp.Connect(g.out))
	assert.Equal(t, []Node{comp}, g.in.Outputs())
	assert.Equal(t, []Node{g.in}, comp.Inputs())

	comp.Disconnect()
	assert.Empty(t, g.in.Outputs())
	assert.Empty(t, g.out.Inputs())
	comp.Disconnect()

	assert.ErrorIs(t, comp.Connect(comp), ErrSelfConnection)
}

func TestCompressorAttenuatesLoudSignal(t *testing.T) {
	g := newBridgedGraph(t, 0.9)
	comp, err := g.runtime.NewCompressorNode(-30, 20)
	require.NoError(t, err)
	require.NoError(t, g.in.Connect(comp))
	require.NoError(t, comp.Connect(g.out))

	var out audiograph.Block
	for i := 0; i < 100; i++ {
		out, err = g.audioCtx.Render(audiograph.DefaultQuantumFrames)
		require.NoError(t, err)
	}
	assert.Less(t, out[0][0], 0.9)

	threshold, ratio := comp.Params()
	assert.Equal(t, -30.0, threshold)
	assert.Equal(t, 20.0, ratio)

	require.NoError(t, comp.SetParams(-10, 1000))
	_, ratio = comp.Params()
	assert.Equal(t, float64(MaxCompressorRatio), ratio)
}

func TestPitchShiftRange(t *testing.T) {
	g := newBridgedGraph(t, 0)
	n, err := g.runtime.NewPitchShiftNode(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, n.Semitones())
	assert.Error(t, n.SetSemitones(30))
	assert.Equal(t, 3.0, n.Semitones())

	_, err = g.runtime.NewPitchShiftNode(-100)
	assert.Error(t, err)
}

func TestPitchShiftDelaysByOneBlock(t *testing.T) {
	g := newBridgedGraph(t, 0.5)
	n, err := g.runtime.NewPitchShiftNode(0)
	require.NoError(t, err)
	require.NoError(t, g.in.Connect(n))
	require.NoError(t, n.Connect(g.out))

	quanta := pitchShiftBlockFrames / audiograph.DefaultQuantumFrames
	for i := 0; i < quanta; i++ {
		out, err := g.audioCtx.Render(audiograph.DefaultQuantumFrames)
		require.NoError(t, err)
		assert.Equal(t, 0.0, out[0][0])
	}
	out, err := g.audioCtx.Render(audiograph.DefaultQuantumFrames)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0][0], 1e-9)
}

func TestReverbBecomesReady(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := newBridgedGraph(t, 0)
	n := g.runtime.NewReverbNode(ctx, 200*time.Millisecond, 0.5)
	require.NoError(t, n.Ready(ctx))
	assert.True(t, n.IsReady())

	decay, wet := n.Params()
	assert.Equal(t, 200*time.Millisecond, decay)
	assert.Equal(t, 0.5, wet)

	n.SetParams(ctx, 300*time.Millisecond, 0.5)
	require.NoError(t, n.Ready(ctx))
	decay, _ = n.Params()
	assert.Equal(t, 300*time.Millisecond, decay)

	// a wet-only change does not regenerate the impulse response
	n.SetParams(ctx, 300*time.Millisecond, 0.1)
	assert.True(t, n.IsReady())
}

func TestReverbCloseDiscardsPendingResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := newBridgedGraph(t, 0)
	n := g.runtime.NewReverbNode(ctx, 2*time.Second, 0.5)
	require.NoError(t, g.in.Connect(n))
	require.NoError(t, n.Connect(g.out))
	g.runtime.locker.Lock()
	pending := n.readyCh
	g.runtime.locker.Unlock()

	n.Close()
	n.Close()
	assert.Empty(t, n.Inputs())
	assert.Empty(t, n.Outputs())
	assert.Empty(t, g.in.Outputs())
	require.ErrorIs(t, n.Ready(ctx), ErrNodeClosed)

	select {
	case <-pending:
	case <-ctx.Done():
		t.Fatal("the impulse response generation did not finish")
	}
	g.runtime.locker.Lock()
	assert.Nil(t, n.convolvers)
	g.runtime.locker.Unlock()

	// a decay change after Close does not start a new generation
	n.SetParams(ctx, 300*time.Millisecond, 0.2)
	require.ErrorIs(t, n.Ready(ctx), ErrNodeClosed)
	decay, wet := n.Params()
	assert.Equal(t, 2*time.Second, decay)
	assert.Equal(t, 0.2, wet)
}

func TestImpulseResponseDecays(t *testing.T) {
	ir := generateImpulseResponse(1000, time.Second)
	require.Len(t, ir, audiograph.NumChannels)
	require.Len(t, ir[0], 1000)
	assert.NotEqual(t, ir[0][1], ir[1][1])
	assert.LessOrEqual(t, abs(ir[0][999]), 0.0011)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
