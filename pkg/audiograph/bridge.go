package audiograph

// BridgeNode is the native half of an adapter between a graph and a
// node of another audio runtime that renders in the same Context.
//
// Only unity-gain pass-through crosses the boundary:
//   - as an input bridge the node is connected to by native nodes and the
//     foreign runtime reads the sum of its inputs with PullInputs;
//   - as an output bridge the foreign runtime installs a source with
//     SetSource and the node passes the source's output into the graph.
type BridgeNode struct {
	baseNode
	source func(q Quantum) Block
}

var _ Node = (*BridgeNode)(nil)

func (c *Context) NewBridgeNode() *BridgeNode {
	n := &BridgeNode{}
	n.init(c, n)
	return n
}

// SetSource installs the function that produces the output of the node.
// A nil source makes the node a pass-through of its native inputs.
func (n *BridgeNode) SetSource(source func(q Quantum) Block) {
	n.ctx.graphLocker.Lock()
	defer n.ctx.graphLocker.Unlock()
	n.source = source
}

// PullInputs returns the output of the node for the quantum q.
// It may be called only from within a render pass of the node's Context,
// i.e. from a source installed with SetSource on some other BridgeNode.
// The returned Block must not be modified.
func (n *BridgeNode) PullInputs(q Quantum) Block {
	return pull(n, q)
}

func (n *BridgeNode) process(q Quantum, in, out Block) {
	if n.source == nil {
		copyBlock(out, in)
		return
	}
	if src := n.source(q); src != nil {
		copyBlock(out, src)
	}
}
