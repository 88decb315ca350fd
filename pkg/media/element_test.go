package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/interpolation"
)

const testSampleRate = 1000

func newTestElement(t *testing.T, frames int) (*PCMElement, *clock.Fake, []float64) {
	t.Helper()
	c := clock.NewFake(time.Unix(0, 0))
	e := NewPCMElement(c, testSampleRate, interpolation.Linear{})
	ramp := make([]float64, frames)
	for i := range ramp {
		ramp[i] = float64(i) / float64(frames)
	}
	e.Load([][]float64{ramp})
	require.NoError(t, e.WaitMetadata(context.Background()))
	return e, c, ramp
}

func TestPCMElementNotReady(t *testing.T) {
	e := NewPCMElement(clock.NewFake(time.Unix(0, 0)), testSampleRate, nil)
	require.ErrorIs(t, e.Play(context.Background()), ErrNotReady)

	errBroken := errors.New("broken")
	e.Fail(errBroken)
	require.ErrorIs(t, e.WaitMetadata(context.Background()), errBroken)
	require.ErrorIs(t, e.Play(context.Background()), errBroken)
	require.True(t, e.Paused())
}

func TestPCMElementWaitMetadataTimeout(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	e := NewPCMElement(c, testSampleRate, nil)

	ctx, cancel := c.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Advance(time.Second)
	require.ErrorIs(t, e.WaitMetadata(ctx), context.DeadlineExceeded)
}

func TestPCMElementPlayPause(t *testing.T) {
	e, c, _ := newTestElement(t, 2*testSampleRate)
	require.Equal(t, 2*time.Second, e.Duration())
	require.True(t, e.Paused())

	require.NoError(t, e.Play(context.Background()))
	c.Advance(500 * time.Millisecond)
	require.Equal(t, 500*time.Millisecond, e.CurrentTime())

	e.Pause()
	c.Advance(time.Second)
	require.Equal(t, 500*time.Millisecond, e.CurrentTime())
	require.True(t, e.Paused())
}

func TestPCMElementSeekClamping(t *testing.T) {
	e, _, _ := newTestElement(t, 2*testSampleRate)

	e.SetCurrentTime(-time.Second)
	require.Equal(t, time.Duration(0), e.CurrentTime())
	e.SetCurrentTime(10 * time.Second)
	require.Equal(t, 2*time.Second, e.CurrentTime())
	e.SetCurrentTime(1500 * time.Millisecond)
	require.Equal(t, 1500*time.Millisecond, e.CurrentTime())
}

func TestPCMElementStopsAtTheEnd(t *testing.T) {
	e, c, _ := newTestElement(t, 2*testSampleRate)

	e.SetCurrentTime(1500 * time.Millisecond)
	require.NoError(t, e.Play(context.Background()))
	c.Advance(time.Second)
	require.Equal(t, 2*time.Second, e.CurrentTime())
	require.True(t, e.Paused())

	require.NoError(t, e.Play(context.Background()))
	require.Equal(t, time.Duration(0), e.CurrentTime())
}

func TestPCMElementClose(t *testing.T) {
	e := NewPCMElement(clock.NewFake(time.Unix(0, 0)), testSampleRate, nil)
	require.NoError(t, e.Close())
	require.ErrorIs(t, e.WaitMetadata(context.Background()), ErrClosed)
	require.ErrorIs(t, e.Play(context.Background()), ErrClosed)
}

func TestPCMElementRender(t *testing.T) {
	e, c, ramp := newTestElement(t, 2*testSampleRate)

	block := make(audiograph.Block, audiograph.NumChannels)
	for ch := range block {
		block[ch] = make([]float64, 10)
	}

	e.RenderTo(block)
	assert.Equal(t, make([]float64, 10), block[0], "a paused element is silent")

	require.NoError(t, e.Play(context.Background()))
	e.RenderTo(block)
	assert.Equal(t, ramp[:10], block[0])
	assert.Equal(t, ramp[:10], block[1], "mono is duplicated into both channels")

	// small drift is tolerated: the cursor continues
	c.Advance(100 * time.Millisecond)
	e.RenderTo(block)
	assert.Equal(t, ramp[10:20], block[0])

	// a seek is bridged with a seam of 5 frames
	e.SetCurrentTime(time.Second)
	e.RenderTo(block)
	last := ramp[19]
	for i := 0; i < 5; i++ {
		assert.Greater(t, block[0][i], last)
		assert.Less(t, block[0][i], ramp[1005])
		last = block[0][i]
	}
	assert.Equal(t, ramp[1005:1010], block[0][5:])
}

func TestPCMElementRenderResync(t *testing.T) {
	e, c, ramp := newTestElement(t, 2*testSampleRate)

	block := make(audiograph.Block, audiograph.NumChannels)
	for ch := range block {
		block[ch] = make([]float64, 10)
	}
	require.NoError(t, e.Play(context.Background()))
	e.RenderTo(block)

	// the clock ran away by more than the resync threshold
	c.Advance(500 * time.Millisecond)
	e.RenderTo(block)
	assert.Equal(t, ramp[505:510], block[0][5:])
}
