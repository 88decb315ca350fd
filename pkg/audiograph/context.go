// Package audiograph is a pull-based audio processing graph: nodes are
// connected into a directed graph ending in the destination of a Context,
// and every render pass (a quantum) pulls the destination, which pulls
// its inputs recursively.
package audiograph

import (
	"fmt"
	"sync"
	"time"
)

const (
	// NumChannels is the amount of channels of every Block in a graph.
	NumChannels = 2

	DefaultSampleRate    = 48000
	DefaultQuantumFrames = 128
)

type State int

const (
	StateSuspended = State(iota)
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}

// Context owns a graph of nodes. All the graph mutations and the rendering
// are serialized by a single lock, so the graph may be rewired while it is
// being played.
type Context struct {
	graphLocker   sync.Mutex
	sampleRate    float64
	quantumFrames int
	state         State
	quantumIndex  uint64
	renderedFrame uint64
	destination   *DestinationNode
}

// NewContext creates a suspended Context.
func NewContext(sampleRate float64, quantumFrames int) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if quantumFrames <= 0 {
		quantumFrames = DefaultQuantumFrames
	}
	c := &Context{
		sampleRate:    sampleRate,
		quantumFrames: quantumFrames,
		state:         StateSuspended,
	}
	c.destination = &DestinationNode{}
	c.destination.init(c, c.destination)
	return c
}

func (c *Context) SampleRate() float64 {
	return c.sampleRate
}

func (c *Context) QuantumFrames() int {
	return c.quantumFrames
}

func (c *Context) Destination() *DestinationNode {
	return c.destination
}

func (c *Context) State() State {
	c.graphLocker.Lock()
	defer c.graphLocker.Unlock()
	return c.state
}

// CurrentTime is the amount of audio rendered so far.
func (c *Context) CurrentTime() time.Duration {
	c.graphLocker.Lock()
	defer c.graphLocker.Unlock()
	return time.Duration(float64(c.renderedFrame) / c.sampleRate * float64(time.Second))
}

func (c *Context) setState(state State) error {
	c.graphLocker.Lock()
	defer c.graphLocker.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.state = state
	return nil
}

// Resume switches a suspended context into the running state.
// It is a no-op for a running context.
func (c *Context) Resume() error {
	return c.setState(StateRunning)
}

func (c *Context) Suspend() error {
	return c.setState(StateSuspended)
}

// Close stops the context: it cannot be rendered, resumed or rewired
// anymore. Disconnecting nodes of a closed context is still allowed.
func (c *Context) Close() {
	c.graphLocker.Lock()
	defer c.graphLocker.Unlock()
	c.state = StateClosed
}

// Render renders the next frames of the graph regardless of the state of
// the context (offline rendering). The returned Block is owned by the caller.
func (c *Context) Render(frames int) (Block, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid amount of frames: %d", frames)
	}
	c.graphLocker.Lock()
	defer c.graphLocker.Unlock()
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	result := newBlock(frames)
	copyBlock(result, c.renderQuantumLocked(frames))
	return result, nil
}

func (c *Context) renderQuantumLocked(frames int) Block {
	q := Quantum{
		Index:  c.quantumIndex,
		Frames: frames,
	}
	c.quantumIndex++
	c.renderedFrame += uint64(frames)
	return pull(c.destination, q)
}

// DestinationNode is the final node of a graph, it sums all its inputs.
type DestinationNode struct {
	baseNode
}

var _ Node = (*DestinationNode)(nil)

func (n *DestinationNode) process(_ Quantum, in, out Block) {
	copyBlock(out, in)
}
