package audiograph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrContextMismatch = errors.New("nodes belong to different audio contexts")
	ErrClosed          = errors.New("the audio context is closed")
	ErrSelfConnection  = errors.New("a node cannot be connected to itself")
)

// Block is a render buffer: Block[channel][frame].
type Block [][]float64

func newBlock(frames int) Block {
	b := make(Block, NumChannels)
	for ch := range b {
		b[ch] = make([]float64, frames)
	}
	return b
}

// Frames returns the amount of frames in the block.
func (b Block) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

func (b Block) clear() {
	for _, ch := range b {
		clear(ch)
	}
}

func (b Block) add(other Block) {
	for ch := range b {
		if ch >= len(other) {
			break
		}
		dst, src := b[ch], other[ch]
		for i := range dst {
			if i >= len(src) {
				break
			}
			dst[i] += src[i]
		}
	}
}

// Quantum identifies a single render pass of the graph.
type Quantum struct {
	Index  uint64
	Frames int
}

// Node is a native node of an audio graph. Nodes of other runtimes cannot
// implement it, see BridgeNode.
type Node interface {
	Context() *Context

	// Connect routes the output of this node into dst. Connecting an
	// already connected pair is a no-op.
	Connect(dst Node) error

	// Disconnect removes every outgoing connection of the node.
	// It is a no-op for an unconnected node.
	Disconnect()

	// DisconnectFrom removes the connection to dst, if any.
	DisconnectFrom(dst Node)

	Inputs() []Node
	Outputs() []Node

	base() *baseNode
	process(q Quantum, in Block, out Block)
}

type baseNode struct {
	ctx     *Context
	self    Node
	inputs  []Node
	outputs []Node

	lastQuantum uint64
	hasCache    bool
	rendering   bool
	in          Block
	out         Block
}

func (n *baseNode) init(ctx *Context, self Node) {
	n.ctx = ctx
	n.self = self
}

func (n *baseNode) base() *baseNode {
	return n
}

func (n *baseNode) Context() *Context {
	return n.ctx
}

func (n *baseNode) Connect(dst Node) error {
	if dst == nil {
		return fmt.Errorf("the destination node is nil")
	}
	if dst.Context() != n.ctx {
		return ErrContextMismatch
	}
	if dst == n.self {
		return ErrSelfConnection
	}

	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	if n.ctx.state == StateClosed {
		return ErrClosed
	}
	if slices.Contains(n.outputs, dst) {
		return nil
	}
	n.outputs = append(n.outputs, dst)
	dstBase := dst.base()
	dstBase.inputs = append(dstBase.inputs, n.self)
	return nil
}

func (n *baseNode) Disconnect() {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	for _, dst := range n.outputs {
		dstBase := dst.base()
		dstBase.inputs = slices.DeleteFunc(dstBase.inputs, func(in Node) bool { return in == n.self })
	}
	n.outputs = nil
}

func (n *baseNode) DisconnectFrom(dst Node) {
	if dst == nil {
		return
	}
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	if !slices.Contains(n.outputs, dst) {
		return
	}
	n.outputs = slices.DeleteFunc(n.outputs, func(out Node) bool { return out == dst })
	dstBase := dst.base()
	dstBase.inputs = slices.DeleteFunc(dstBase.inputs, func(in Node) bool { return in == n.self })
}

func (n *baseNode) Inputs() []Node {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	return slices.Clone(n.inputs)
}

func (n *baseNode) Outputs() []Node {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	return slices.Clone(n.outputs)
}

// pull renders the node for the quantum q; graphLocker must be held.
// The output of a node is computed once per quantum, no matter how many
// nodes consume it.
func pull(node Node, q Quantum) Block {
	n := node.base()
	if n.hasCache && n.lastQuantum == q.Index && n.out.Frames() == q.Frames {
		return n.out
	}
	if n.rendering {
		// a cycle; the cycle is broken with silence
		return newBlock(q.Frames)
	}
	if n.out.Frames() != q.Frames {
		n.in = newBlock(q.Frames)
		n.out = newBlock(q.Frames)
	}
	n.rendering = true
	defer func() { n.rendering = false }()
	n.in.clear()
	for _, input := range n.inputs {
		n.in.add(pull(input, q))
	}
	n.out.clear()
	node.process(q, n.in, n.out)
	n.lastQuantum = q.Index
	n.hasCache = true
	return n.out
}

func copyBlock(dst, src Block) {
	for ch := range dst {
		copy(dst[ch], src[ch])
	}
}
