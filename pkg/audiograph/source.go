package audiograph

// MediaStream is the audio of a media element as seen by the graph.
//
// RenderTo is called from within a render pass: it must fill dst with the
// next dst.Frames() frames (or leave it silent if paused) and must not
// access the graph.
type MediaStream interface {
	RenderTo(dst Block)
}

// MediaElementSourceNode feeds the audio of a media element into a graph.
type MediaElementSourceNode struct {
	baseNode
	stream MediaStream
}

var _ Node = (*MediaElementSourceNode)(nil)

func (c *Context) NewMediaElementSourceNode(stream MediaStream) *MediaElementSourceNode {
	n := &MediaElementSourceNode{stream: stream}
	n.init(c, n)
	return n
}

func (n *MediaElementSourceNode) Stream() MediaStream {
	return n.stream
}

func (n *MediaElementSourceNode) process(_ Quantum, _, out Block) {
	if n.stream == nil {
		return
	}
	n.stream.RenderTo(out)
}
