package media

import (
	"context"
	"sync"
	"time"

	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/interpolation"
)

const (
	// resyncThreshold is how far the render cursor may run away from the
	// clock of the element before it is snapped back; it must exceed the
	// output buffer.
	resyncThreshold = 250 * time.Millisecond

	seamDuration = 5 * time.Millisecond
	historyLen   = 1024
)

// PCMElement is an Element over audio decoded into memory. Its position is
// measured by a clock.Scheduler; the audio graph renders from a cursor that
// follows that position, and every jump of the cursor is bridged with
// interpolated audio.
type PCMElement struct {
	scheduler  clock.Scheduler
	sampleRate float64
	interp     interpolation.Interpolator
	seamFrames int
	cancel     context.CancelFunc

	locker     sync.Mutex
	samples    [][]float64
	loadErr    error
	metadataCh chan struct{}
	loadDone   bool
	closed     bool

	playing   bool
	position  time.Duration
	startedAt time.Time
	jumped    bool

	cursor  int
	seam    [][]float64
	history [][]float64
}

var _ Element = (*PCMElement)(nil)

// NewPCMElement returns an element in the loading state, see Load and Fail.
func NewPCMElement(
	scheduler clock.Scheduler,
	sampleRate float64,
	interp interpolation.Interpolator,
) *PCMElement {
	if interp == nil {
		interp = interpolation.Linear{}
	}
	return &PCMElement{
		scheduler:  scheduler,
		sampleRate: sampleRate,
		interp:     interp,
		seamFrames: int(seamDuration.Seconds() * sampleRate),
		metadataCh: make(chan struct{}),
	}
}

// Load finishes the loading with the decoded audio (indexed as
// [channel][frame] at the sample rate of the element).
func (e *PCMElement) Load(samples [][]float64) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.loadDone {
		return
	}
	e.samples = toStereo(samples)
	e.finishLoadLocked(nil)
}

// Fail finishes the loading with an error.
func (e *PCMElement) Fail(err error) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.loadDone {
		return
	}
	e.finishLoadLocked(err)
}

func (e *PCMElement) finishLoadLocked(err error) {
	e.loadErr = err
	e.loadDone = true
	close(e.metadataCh)
}

func (e *PCMElement) WaitMetadata(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return ctx.Err()
	case <-e.metadataCh:
	}
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.loadErr
}

func (e *PCMElement) frames() int {
	if len(e.samples) == 0 {
		return 0
	}
	return len(e.samples[0])
}

func (e *PCMElement) durationLocked() time.Duration {
	return time.Duration(float64(e.frames()) / e.sampleRate * float64(time.Second))
}

func (e *PCMElement) Duration() time.Duration {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.durationLocked()
}

// positionLocked returns the current position; an element reaching the end
// stops there.
func (e *PCMElement) positionLocked() time.Duration {
	if !e.playing {
		return e.position
	}
	pos := e.position + e.scheduler.Now().Sub(e.startedAt)
	if duration := e.durationLocked(); pos >= duration {
		e.playing = false
		e.position = duration
		return duration
	}
	return pos
}

func (e *PCMElement) CurrentTime() time.Duration {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.positionLocked()
}

// SetCurrentTime moves the position, clamped into [0, Duration].
func (e *PCMElement) SetCurrentTime(t time.Duration) {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.position = min(max(t, 0), e.durationLocked())
	e.startedAt = e.scheduler.Now()
	e.jumped = true
}

func (e *PCMElement) Play(ctx context.Context) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	switch {
	case e.closed:
		return ErrClosed
	case !e.loadDone:
		return ErrNotReady
	case e.loadErr != nil:
		return e.loadErr
	}
	if e.playing {
		return nil
	}
	if e.position >= e.durationLocked() {
		e.position = 0
	}
	e.playing = true
	e.startedAt = e.scheduler.Now()
	e.jumped = true
	return nil
}

func (e *PCMElement) Pause() {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.position = e.positionLocked()
	e.playing = false
}

func (e *PCMElement) Paused() bool {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.positionLocked()
	return !e.playing
}

func (e *PCMElement) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.locker.Lock()
	defer e.locker.Unlock()
	if !e.loadDone {
		e.finishLoadLocked(ErrClosed)
	}
	e.closed = true
	e.playing = false
	e.samples = nil
	e.seam, e.history = nil, nil
	return nil
}

// RenderTo implements audiograph.MediaStream.
func (e *PCMElement) RenderTo(dst audiograph.Block) {
	e.locker.Lock()
	defer e.locker.Unlock()

	pos := e.positionLocked()
	if !e.playing || e.frames() == 0 {
		e.history = nil
		e.seam = nil
		return
	}

	target := int(pos.Seconds() * e.sampleRate)
	maxDrift := int(resyncThreshold.Seconds() * e.sampleRate)
	if drift := e.cursor - target; e.jumped || drift > maxDrift || drift < -maxDrift {
		e.jumpLocked(target)
	}

	for i := 0; i < dst.Frames(); i++ {
		for ch := range dst {
			dst[ch][i] = e.nextSampleLocked(ch)
		}
		if len(e.seam) > 0 && len(e.seam[0]) > 0 {
			for ch := range e.seam {
				e.seam[ch] = e.seam[ch][1:]
			}
		} else {
			e.cursor++
		}
	}
	e.rememberLocked(dst)
}

func (e *PCMElement) nextSampleLocked(ch int) float64 {
	if len(e.seam) > ch && len(e.seam[ch]) > 0 {
		return e.seam[ch][0]
	}
	if ch >= len(e.samples) || e.cursor >= len(e.samples[ch]) || e.cursor < 0 {
		return 0
	}
	return e.samples[ch][e.cursor]
}

// jumpLocked moves the cursor to target, bridging the previously rendered
// audio and the audio at target.
func (e *PCMElement) jumpLocked(target int) {
	e.jumped = false
	if len(e.history) == 0 || e.seamFrames == 0 {
		e.cursor = target
		e.seam = nil
		return
	}

	upcomingStart := target + e.seamFrames
	upcoming := make([][]float64, len(e.samples))
	for ch := range upcoming {
		from := min(upcomingStart, len(e.samples[ch]))
		to := min(upcomingStart+historyLen, len(e.samples[ch]))
		upcoming[ch] = e.samples[ch][from:to]
	}
	e.seam = interpolation.Seam(e.interp, e.history, upcoming, e.seamFrames)
	e.cursor = upcomingStart
}

func (e *PCMElement) rememberLocked(rendered audiograph.Block) {
	if e.history == nil {
		e.history = make([][]float64, len(rendered))
	}
	for ch := range e.history {
		h := append(e.history[ch], rendered[ch]...)
		if len(h) > historyLen {
			h = append(h[:0:0], h[len(h)-historyLen:]...)
		}
		e.history[ch] = h
	}
}

// toStereo converts a decoded signal into exactly audiograph.NumChannels
// channels.
func toStereo(samples [][]float64) [][]float64 {
	switch len(samples) {
	case 0:
		return nil
	case 1:
		return [][]float64{samples[0], samples[0]}
	default:
		return samples[:audiograph.NumChannels]
	}
}
