package effects

import (
	"errors"
	"slices"

	"github.com/xaionaro-go/multitrack/pkg/audiograph"
)

var (
	ErrSelfConnection = errors.New("a node cannot be connected to itself")
	ErrNodeClosed     = errors.New("the node is closed")
)

// Node is a node of the effects runtime.
type Node interface {
	Runtime() *Runtime

	// Connect routes the output of the node into dst; connecting an
	// already connected pair is a no-op.
	Connect(dst Node) error

	// Disconnect removes every connection of the node, in both
	// directions. It is a no-op for an unconnected node.
	Disconnect()

	Inputs() []Node
	Outputs() []Node

	// Close disconnects the node and releases what it holds; the node
	// must not be used afterwards.
	Close()

	base() *baseNode
	process(q audiograph.Quantum, in, out audiograph.Block)
}

type baseNode struct {
	runtime *Runtime
	self    Node
	inputs  []Node
	outputs []Node

	lastQuantum uint64
	hasCache    bool
	in          audiograph.Block
	out         audiograph.Block
}

func (n *baseNode) init(rt *Runtime, self Node) {
	n.runtime = rt
	n.self = self
}

func (n *baseNode) base() *baseNode {
	return n
}

func (n *baseNode) Runtime() *Runtime {
	return n.runtime
}

func (n *baseNode) Connect(dst Node) error {
	if dst.Runtime() != n.runtime {
		return ErrContextMismatch
	}
	if dst == n.self {
		return ErrSelfConnection
	}
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	if slices.Contains(n.outputs, dst) {
		return nil
	}
	n.outputs = append(n.outputs, dst)
	dst.base().inputs = append(dst.base().inputs, n.self)
	return nil
}

func (n *baseNode) Disconnect() {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	for _, dst := range n.outputs {
		dst.base().inputs = slices.DeleteFunc(dst.base().inputs, func(in Node) bool { return in == n.self })
	}
	for _, src := range n.inputs {
		src.base().outputs = slices.DeleteFunc(src.base().outputs, func(out Node) bool { return out == n.self })
	}
	n.outputs = nil
	n.inputs = nil
}

func (n *baseNode) Close() {
	n.Disconnect()
}

func (n *baseNode) Inputs() []Node {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	return slices.Clone(n.inputs)
}

func (n *baseNode) Outputs() []Node {
	n.runtime.locker.Lock()
	defer n.runtime.locker.Unlock()
	return slices.Clone(n.outputs)
}

// pull renders the node for the quantum q; runtime.locker must be held.
func pull(node Node, q audiograph.Quantum) audiograph.Block {
	n := node.base()
	if n.hasCache && n.lastQuantum == q.Index && n.out.Frames() == q.Frames {
		return n.out
	}
	if n.out.Frames() != q.Frames {
		n.in = newBlock(q.Frames)
		n.out = newBlock(q.Frames)
	}
	// mark before recursing, so a cycle is cut with the previous output
	n.lastQuantum, n.hasCache = q.Index, true
	for _, ch := range n.in {
		clear(ch)
	}
	for _, input := range n.inputs {
		addBlock(n.in, pull(input, q))
	}
	for _, ch := range n.out {
		clear(ch)
	}
	node.process(q, n.in, n.out)
	return n.out
}

func newBlock(frameCount int) audiograph.Block {
	b := make(audiograph.Block, audiograph.NumChannels)
	for ch := range b {
		b[ch] = make([]float64, frameCount)
	}
	return b
}

func addBlock(dst, src audiograph.Block) {
	for ch := range dst {
		if ch >= len(src) {
			break
		}
		for i := range dst[ch] {
			if i >= len(src[ch]) {
				break
			}
			dst[ch][i] += src[ch][i]
		}
	}
}

func copyBlock(dst, src audiograph.Block) {
	for ch := range dst {
		if ch >= len(src) {
			break
		}
		copy(dst[ch], src[ch])
	}
}
