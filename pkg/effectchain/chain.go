// Package effectchain inserts optional effects between the panner and the
// analysis tap of a track.
package effectchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/effects"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
)

var (
	ErrDisposed        = errors.New("the effect chain is disposed")
	ErrEffectNotLoaded = errors.New("the effect was never enabled")
)

// Chain is an ordered, variable set of effects between two fixed native
// nodes. The topology is fully determined by the set of enabled effects,
// see Rebuild.
type Chain struct {
	loader *effects.Loader
	from   audiograph.Node
	to     audiograph.Node

	locker    sync.Mutex
	disposed  bool
	runtime   *effects.Runtime
	nativeIn  *audiograph.BridgeNode
	nativeOut *audiograph.BridgeNode
	in        *effects.InputBridge
	out       *effects.OutputBridge
	nodes     map[mixer.EffectType]effects.Node
	enabled   map[mixer.EffectType]bool
	wanted    map[mixer.EffectType]uint64
	nextWant  uint64
}

// New takes over the link from->to: the output of from is owned by the
// Chain from now on.
func New(loader *effects.Loader, from, to audiograph.Node) *Chain {
	c := &Chain{
		loader:  loader,
		from:    from,
		to:      to,
		nodes:   map[mixer.EffectType]effects.Node{},
		enabled: map[mixer.EffectType]bool{},
		wanted:  map[mixer.EffectType]uint64{},
	}
	c.locker.Lock()
	defer c.locker.Unlock()
	c.rebuildLocked()
	return c
}

// Rebuild rewires the chain according to the enabled set:
//
//	from -> [in-bridge -> effects in canonical order -> out-bridge] -> to
//
// With no enabled effects from is connected to to directly.
func (c *Chain) Rebuild() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return c.rebuildLocked()
}

func (c *Chain) disconnectAllLocked() {
	c.from.Disconnect()
	if c.nativeIn != nil {
		c.nativeIn.Disconnect()
		c.nativeOut.Disconnect()
		c.in.Disconnect()
		c.out.Disconnect()
	}
	for _, node := range c.nodes {
		node.Disconnect()
	}
}

func (c *Chain) rebuildLocked() error {
	c.disconnectAllLocked()

	var chain []effects.Node
	for _, t := range mixer.EffectTypes() {
		if c.enabled[t] {
			chain = append(chain, c.nodes[t])
		}
	}
	if len(chain) == 0 {
		return c.from.Connect(c.to)
	}

	if err := c.from.Connect(c.nativeIn); err != nil {
		return fmt.Errorf("unable to connect the input bridge: %w", err)
	}
	prev := effects.Node(c.in)
	for _, node := range append(chain, c.out) {
		if err := prev.Connect(node); err != nil {
			return fmt.Errorf("unable to connect %T to %T: %w", prev, node, err)
		}
		prev = node
	}
	if err := c.nativeOut.Connect(c.to); err != nil {
		return fmt.Errorf("unable to connect the output bridge: %w", err)
	}
	return nil
}

// initBridgesLocked loads the effects runtime and creates the bridges,
// on the first call only.
func (c *Chain) initBridgesLocked(ctx context.Context) error {
	if c.runtime != nil {
		return nil
	}
	audioCtx := c.from.Context()
	rt, err := c.loader.Load(ctx, audioCtx)
	if err != nil {
		return err
	}
	nativeIn, nativeOut := audioCtx.NewBridgeNode(), audioCtx.NewBridgeNode()
	in, err := rt.NewInputBridge(nativeIn)
	if err != nil {
		return fmt.Errorf("unable to create the input bridge: %w", err)
	}
	out, err := rt.NewOutputBridge(nativeOut)
	if err != nil {
		return fmt.Errorf("unable to create the output bridge: %w", err)
	}
	c.runtime = rt
	c.nativeIn, c.nativeOut = nativeIn, nativeOut
	c.in, c.out = in, out
	return nil
}

func (c *Chain) newNodeLocked(ctx context.Context, params mixer.EffectParams) (effects.Node, error) {
	switch params := params.(type) {
	case mixer.PitchShiftParams:
		return c.runtime.NewPitchShiftNode(params.Semitones)
	case mixer.ReverbParams:
		return c.runtime.NewReverbNode(ctx, params.Decay, params.Wet), nil
	case mixer.CompressorParams:
		return c.runtime.NewCompressorNode(params.Threshold, params.Ratio)
	default:
		return nil, fmt.Errorf("unsupported effect parameters %T", params)
	}
}

// Enable adds the effect into the chain, creating its node with the given
// parameters on the first call. An effect whose node needs preparation
// (the reverb) is added only when the node is ready.
func (c *Chain) Enable(ctx context.Context, params mixer.EffectParams) (_err error) {
	if params == nil {
		return fmt.Errorf("no effect parameters provided")
	}
	t := params.EffectType()
	logger.Tracef(ctx, "Enable(%s)", t)
	defer func() { logger.Tracef(ctx, "/Enable(%s): %v", t, _err) }()

	c.locker.Lock()
	if c.disposed {
		c.locker.Unlock()
		return ErrDisposed
	}
	if err := c.initBridgesLocked(ctx); err != nil {
		c.locker.Unlock()
		return fmt.Errorf("unable to initialize the effects runtime: %w", err)
	}
	node, ok := c.nodes[t]
	if ok {
		if err := c.applyParamsLocked(ctx, node, params); err != nil {
			c.locker.Unlock()
			return err
		}
	} else {
		var err error
		node, err = c.newNodeLocked(ctx, params)
		if err != nil {
			c.locker.Unlock()
			return fmt.Errorf("unable to create the %s node: %w", t, err)
		}
		c.nodes[t] = node
	}
	c.nextWant++
	want := c.nextWant
	c.wanted[t] = want
	c.locker.Unlock()

	if reverb, ok := node.(*effects.ReverbNode); ok {
		if err := reverb.Ready(ctx); err != nil {
			if errors.Is(err, effects.ErrNodeClosed) {
				return ErrDisposed
			}
			return fmt.Errorf("the %s is not usable: %w", t, err)
		}
	}

	c.locker.Lock()
	defer c.locker.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if c.wanted[t] != want {
		logger.Debugf(ctx, "%s was disabled or re-enabled while preparing", t)
		return nil
	}
	if c.enabled[t] {
		return nil
	}
	c.enabled[t] = true
	return c.rebuildLocked()
}

// Disable removes the effect from the chain; the node is kept for a later
// Enable.
func (c *Chain) Disable(t mixer.EffectType) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	delete(c.wanted, t)
	if !c.enabled[t] {
		return nil
	}
	c.enabled[t] = false
	return c.rebuildLocked()
}

// UpdateParams changes the parameters of a live effect node without
// touching the topology.
func (c *Chain) UpdateParams(ctx context.Context, params mixer.EffectParams) error {
	if params == nil {
		return fmt.Errorf("no effect parameters provided")
	}
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	node, ok := c.nodes[params.EffectType()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEffectNotLoaded, params.EffectType())
	}
	return c.applyParamsLocked(ctx, node, params)
}

func (c *Chain) applyParamsLocked(ctx context.Context, node effects.Node, params mixer.EffectParams) error {
	switch node := node.(type) {
	case *effects.PitchShiftNode:
		p, ok := params.(mixer.PitchShiftParams)
		if !ok {
			break
		}
		return node.SetSemitones(p.Semitones)
	case *effects.ReverbNode:
		p, ok := params.(mixer.ReverbParams)
		if !ok {
			break
		}
		node.SetParams(ctx, p.Decay, p.Wet)
		return nil
	case *effects.CompressorNode:
		p, ok := params.(mixer.CompressorParams)
		if !ok {
			break
		}
		return node.SetParams(p.Threshold, p.Ratio)
	}
	return fmt.Errorf("parameters %T do not match the node %T", params, node)
}

// Enabled reports if the effect is currently in the chain.
func (c *Chain) Enabled(t mixer.EffectType) bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.enabled[t]
}

// Params returns the live parameters of the effect node, if it exists.
func (c *Chain) Params(t mixer.EffectType) (mixer.EffectParams, bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	switch node := c.nodes[t].(type) {
	case *effects.PitchShiftNode:
		return mixer.PitchShiftParams{Semitones: node.Semitones()}, true
	case *effects.ReverbNode:
		decay, wet := node.Params()
		return mixer.ReverbParams{Decay: decay, Wet: wet}, true
	case *effects.CompressorNode:
		threshold, ratio := node.Params()
		return mixer.CompressorParams{Threshold: threshold, Ratio: ratio}, true
	default:
		return nil, false
	}
}

// Dispose destroys every node of the chain and restores the direct link
// from->to. It is idempotent.
func (c *Chain) Dispose() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.disposed {
		return nil
	}
	c.disposed = true
	c.disconnectAllLocked()
	if c.in != nil {
		c.in.Close()
		c.out.Close()
	}
	for _, node := range c.nodes {
		node.Close()
	}
	c.nodes = map[mixer.EffectType]effects.Node{}
	c.enabled = map[mixer.EffectType]bool{}
	c.wanted = map[mixer.EffectType]uint64{}
	c.runtime, c.nativeIn, c.nativeOut, c.in, c.out = nil, nil, nil, nil, nil
	return c.from.Connect(c.to)
}
