package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/reconciler"
)

// virtualVideo is a headless stand-in for the video player: it only keeps
// a position running on the clock and a volume.
type virtualVideo struct {
	scheduler     clock.Scheduler
	onStateChange func(playing bool)

	locker    sync.Mutex
	volume    float64
	muted     bool
	playing   bool
	position  time.Duration
	startedAt time.Time
}

var _ reconciler.VideoPlayer = (*virtualVideo)(nil)

func newVirtualVideo(scheduler clock.Scheduler, onStateChange func(bool)) *virtualVideo {
	return &virtualVideo{
		scheduler:     scheduler,
		onStateChange: onStateChange,
		volume:        reconciler.MaxVideoVolume,
	}
}

func (v *virtualVideo) positionLocked() time.Duration {
	if !v.playing {
		return v.position
	}
	return v.position + v.scheduler.Now().Sub(v.startedAt)
}

func (v *virtualVideo) setPlaying(ctx context.Context, playing bool) {
	v.locker.Lock()
	changed := v.playing != playing
	v.position = v.positionLocked()
	v.startedAt = v.scheduler.Now()
	v.playing = playing
	v.locker.Unlock()
	if !changed {
		return
	}
	logger.Debugf(ctx, "video: playing:%v", playing)
	if v.onStateChange != nil {
		v.onStateChange(playing)
	}
}

func (v *virtualVideo) Play(ctx context.Context) error {
	v.setPlaying(ctx, true)
	return nil
}

func (v *virtualVideo) Pause(ctx context.Context) error {
	v.setPlaying(ctx, false)
	return nil
}

func (v *virtualVideo) SeekTo(ctx context.Context, ts time.Duration) error {
	logger.Debugf(ctx, "video: seek to %v", ts)
	v.locker.Lock()
	defer v.locker.Unlock()
	v.position, v.startedAt = ts, v.scheduler.Now()
	return nil
}

func (v *virtualVideo) CurrentTime(context.Context) (time.Duration, error) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.positionLocked(), nil
}

func (v *virtualVideo) Volume(context.Context) (float64, error) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.volume, nil
}

func (v *virtualVideo) SetVolume(_ context.Context, volume float64) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.volume = volume
	return nil
}

func (v *virtualVideo) Mute(ctx context.Context) error {
	logger.Debugf(ctx, "video: mute")
	v.locker.Lock()
	defer v.locker.Unlock()
	v.muted = true
	return nil
}

func (v *virtualVideo) UnMute(ctx context.Context) error {
	logger.Debugf(ctx, "video: unmute")
	v.locker.Lock()
	defer v.locker.Unlock()
	v.muted = false
	return nil
}

func (v *virtualVideo) String() string {
	v.locker.Lock()
	defer v.locker.Unlock()
	return fmt.Sprintf("video{pos:%v, volume:%.0f, muted:%v}", v.positionLocked().Truncate(time.Millisecond), v.volume, v.muted)
}
