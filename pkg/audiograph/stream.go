package audiograph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/iamcalledrob/circular"
)

// renderReader is the PCM (interleaved Float32LE) view of the output of a
// Context. Reads render new quanta on demand; a suspended context is read
// as silence, a closed one as io.EOF.
type renderReader struct {
	ctx          *Context
	bufferLocker sync.Mutex
	buffer       *circular.Buffer
	encoded      []byte
}

var _ io.Reader = (*renderReader)(nil)

func newRenderReader(ctx *Context) *renderReader {
	quantumBytes := ctx.quantumFrames * NumChannels * 4
	return &renderReader{
		ctx:     ctx,
		buffer:  circular.NewBuffer(quantumBytes * 2),
		encoded: make([]byte, quantumBytes),
	}
}

func (r *renderReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.bufferLocker.Lock()
	defer r.bufferLocker.Unlock()
	for {
		n, err := r.buffer.Read(p)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, fmt.Errorf("unable to read from the circular buffer: %w", err)
		}
		if n > 0 {
			return n, nil
		}

		if err := r.renderNext(); err != nil {
			return 0, err
		}
	}
}

func (r *renderReader) renderNext() error {
	c := r.ctx
	c.graphLocker.Lock()
	var block Block
	switch c.state {
	case StateClosed:
		c.graphLocker.Unlock()
		return io.EOF
	case StateRunning:
		block = c.renderQuantumLocked(c.quantumFrames)
	}
	encodeFloat32LE(r.encoded, block, c.quantumFrames)
	c.graphLocker.Unlock()

	w, err := r.buffer.Write(r.encoded)
	if err != nil {
		return fmt.Errorf("unable to write to the circular buffer: %w", err)
	}
	if w != len(r.encoded) {
		return fmt.Errorf("wrote != rendered: %d != %d", w, len(r.encoded))
	}
	return nil
}

// encodeFloat32LE interleaves the block into dst; a nil block is encoded
// as silence.
func encodeFloat32LE(dst []byte, block Block, frames int) {
	if block == nil {
		clear(dst)
		return
	}
	idx := 0
	for i := 0; i < frames; i++ {
		for ch := 0; ch < NumChannels; ch++ {
			binary.LittleEndian.PutUint32(dst[idx:], math.Float32bits(float32(block[ch][i])))
			idx += 4
		}
	}
}
