package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/clock"
)

// Crossfader fades the video out in equal discrete steps.
type Crossfader struct {
	Scheduler clock.Scheduler
	Duration  time.Duration
	Steps     int
}

// FadeOut ramps the volume of the video from 'from' to zero in c.Steps
// steps over c.Duration, and then mutes the video. onDone is called after
// muting, unless the fade is cancelled.
func (c Crossfader) FadeOut(
	ctx context.Context,
	video VideoPlayer,
	from float64,
	onDone func(),
) clock.CancelFunc {
	steps := max(c.Steps, 1)
	interval := c.Duration / time.Duration(steps)
	if interval <= 0 {
		interval = time.Nanosecond
	}

	var (
		locker    sync.Mutex
		step      int
		cancelled bool
		stop      clock.CancelFunc
	)
	locker.Lock()
	defer locker.Unlock()
	stop = c.Scheduler.Every(interval, func() {
		locker.Lock()
		if cancelled {
			locker.Unlock()
			return
		}
		step++
		volume := from * float64(steps-step) / float64(steps)
		last := step >= steps
		if last {
			cancelled = true
			stop()
		}
		locker.Unlock()

		if err := video.SetVolume(ctx, volume); err != nil {
			logger.Warnf(ctx, "unable to set the video volume to %v: %v", volume, err)
		}
		if !last {
			return
		}
		if err := video.Mute(ctx); err != nil {
			logger.Warnf(ctx, "unable to mute the video: %v", err)
		}
		if onDone != nil {
			onDone()
		}
	})
	return func() {
		locker.Lock()
		defer locker.Unlock()
		cancelled = true
		stop()
	}
}
