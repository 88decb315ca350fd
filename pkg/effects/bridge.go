package effects

import (
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

// InputBridge is where the audio enters the effects graph: it outputs
// whatever the native BridgeNode receives.
type InputBridge struct {
	baseNode
	native *audiograph.BridgeNode
}

var _ Node = (*InputBridge)(nil)

// NewInputBridge wraps the native BridgeNode, which must belong to the
// context of the runtime.
func (rt *Runtime) NewInputBridge(native *audiograph.BridgeNode) (*InputBridge, error) {
	if native.Context() != rt.audioCtx {
		return nil, ErrContextMismatch
	}
	n := &InputBridge{native: native}
	n.init(rt, n)
	return n, nil
}

func (n *InputBridge) Native() *audiograph.BridgeNode {
	return n.native
}

func (n *InputBridge) process(q audiograph.Quantum, _, out audiograph.Block) {
	copyBlock(out, n.native.PullInputs(q))
}

// OutputBridge is where the audio leaves the effects graph: the native
// BridgeNode outputs whatever is connected into the OutputBridge.
type OutputBridge struct {
	baseNode
	native *audiograph.BridgeNode
}

var _ Node = (*OutputBridge)(nil)

// NewOutputBridge wraps the native BridgeNode, which must belong to the
// context of the runtime, and makes the native node render the effects
// graph.
func (rt *Runtime) NewOutputBridge(native *audiograph.BridgeNode) (*OutputBridge, error) {
	if native.Context() != rt.audioCtx {
		return nil, ErrContextMismatch
	}
	n := &OutputBridge{native: native}
	n.init(rt, n)
	native.SetSource(func(q audiograph.Quantum) audiograph.Block {
		rt.locker.Lock()
		defer rt.locker.Unlock()
		return pull(n, q)
	})
	return n, nil
}

func (n *OutputBridge) Native() *audiograph.BridgeNode {
	return n.native
}

func (n *OutputBridge) process(_ audiograph.Quantum, in, out audiograph.Block) {
	copyBlock(out, in)
}

// Close detaches the native node from the effects graph.
func (n *OutputBridge) Close() {
	n.native.SetSource(nil)
	n.Disconnect()
}
