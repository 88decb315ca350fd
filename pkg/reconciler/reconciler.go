// Package reconciler makes the multitrack audio and an external video
// player look like a single timeline.
//
// Until the multitrack audio is ready the video is the only source of
// audio. Once it is ready the video is faded out and muted, the multitrack
// becomes the authority of the position, and the video only follows it
// visually. The way back to the video audio is only Reset.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/clock"
)

var ErrNoVideo = errors.New("no video player is bound")

type Reconciler struct {
	config     Config
	scheduler  clock.Scheduler
	multitrack Multitrack
	ctx        context.Context

	locker          sync.Mutex
	source          AudioSource
	video           VideoPlayer
	videoPlaying    bool
	multitrackReady bool
	lastVideoTime   time.Duration
	hasVideoTime    bool
	savedVolume     float64
	hasSavedVolume  bool
	stopCrossfade   clock.CancelFunc
	stopPoll        clock.CancelFunc
	stopDriftCheck  clock.CancelFunc
}

// New returns a Reconciler in the video-only state. ctx is used for the
// logging of the background activity.
func New(
	ctx context.Context,
	cfg Config,
	scheduler clock.Scheduler,
	multitrack Multitrack,
) *Reconciler {
	return &Reconciler{
		config:     cfg,
		scheduler:  scheduler,
		multitrack: multitrack,
		ctx:        ctx,
	}
}

func (r *Reconciler) AudioSource() AudioSource {
	r.locker.Lock()
	defer r.locker.Unlock()
	return r.source
}

// BindVideo attaches the video player and starts following it. If the
// multitrack is already the audio source, the video is immediately muted
// and brought to the state of the multitrack.
func (r *Reconciler) BindVideo(ctx context.Context, video VideoPlayer) {
	logger.Tracef(ctx, "BindVideo")
	defer func() { logger.Tracef(ctx, "/BindVideo") }()

	r.locker.Lock()
	r.video = video
	r.hasVideoTime = false
	if r.stopPoll == nil {
		r.stopPoll = r.scheduler.Every(r.config.VideoPollInterval, r.pollVideo)
	}
	if r.stopDriftCheck == nil {
		r.stopDriftCheck = r.scheduler.Every(r.config.DriftCheckInterval, r.checkDrift)
	}
	source := r.source
	if source == AudioSourceMultitrack && !r.hasSavedVolume {
		r.saveVolumeLocked(ctx, video)
	}
	r.locker.Unlock()

	if source != AudioSourceMultitrack {
		return
	}
	if err := video.Mute(ctx); err != nil {
		logger.Warnf(ctx, "unable to mute the video: %v", err)
	}
	r.catchUp(ctx, video)
}

func (r *Reconciler) saveVolumeLocked(ctx context.Context, video VideoPlayer) float64 {
	volume, err := video.Volume(ctx)
	if err != nil {
		logger.Warnf(ctx, "unable to get the video volume: %v", err)
		volume = MaxVideoVolume
	}
	r.savedVolume = volume
	r.hasSavedVolume = true
	return volume
}

// catchUp brings the video to the current state of the multitrack.
func (r *Reconciler) catchUp(ctx context.Context, video VideoPlayer) {
	pos := r.multitrack.CurrentTime()
	logger.Debugf(ctx, "catching the video up to %v", pos)
	if err := video.SeekTo(ctx, pos); err != nil {
		logger.Warnf(ctx, "unable to seek the video to %v: %v", pos, err)
	}
	r.rememberVideoTime(pos)

	var err error
	if r.multitrack.Playing() {
		err = video.Play(ctx)
	} else {
		err = video.Pause(ctx)
	}
	if err != nil {
		logger.Warnf(ctx, "unable to sync the playing state of the video: %v", err)
	}
}

// NotifyVideoState records whether the video is playing, as reported by the
// video player.
func (r *Reconciler) NotifyVideoState(playing bool) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.videoPlaying = playing
}

func (r *Reconciler) rememberVideoTime(ts time.Duration) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.lastVideoTime = ts
	r.hasVideoTime = true
}

func (r *Reconciler) pollVideo() {
	ctx := r.ctx
	r.locker.Lock()
	video := r.video
	r.locker.Unlock()
	if video == nil {
		return
	}
	ts, err := video.CurrentTime(ctx)
	if err != nil {
		logger.Debugf(ctx, "unable to get the video position: %v", err)
		return
	}
	r.HandleVideoTime(ctx, ts)
}

// HandleVideoTime processes a position update of the video. A jump above
// the threshold is a seek made on the video, and the multitrack follows it.
func (r *Reconciler) HandleVideoTime(ctx context.Context, ts time.Duration) {
	r.locker.Lock()
	jumped := false
	if r.hasVideoTime {
		delta := ts - r.lastVideoTime
		jumped = delta > r.config.SeekJumpThreshold || delta < -r.config.SeekJumpThreshold
	}
	r.lastVideoTime = ts
	r.hasVideoTime = true
	source := r.source
	r.locker.Unlock()

	if !jumped || source != AudioSourceMultitrack {
		return
	}
	logger.Debugf(ctx, "the video was seeked to %v", ts)
	r.multitrack.Seek(ctx, ts)
}

// checkDrift snaps the video to the multitrack, never the reverse.
func (r *Reconciler) checkDrift() {
	ctx := r.ctx
	r.locker.Lock()
	video, source := r.video, r.source
	r.locker.Unlock()
	if video == nil || source != AudioSourceMultitrack {
		return
	}

	multitrackTime := r.multitrack.CurrentTime()
	videoTime, err := video.CurrentTime(ctx)
	if err != nil {
		logger.Warnf(ctx, "unable to get the video position: %v", err)
		return
	}
	drift := videoTime - multitrackTime
	if drift <= r.config.DriftThreshold && drift >= -r.config.DriftThreshold {
		return
	}
	logger.Debugf(ctx, "the video drifted by %v, seeking it to %v", drift, multitrackTime)
	if err := video.SeekTo(ctx, multitrackTime); err != nil {
		logger.Warnf(ctx, "unable to correct the video drift: %v", err)
		return
	}
	r.rememberVideoTime(multitrackTime)
}

// OnMultitrackReady reports the readiness of the multitrack. The first
// transition to ready switches the audio source to the multitrack: the
// video is faded out and the multitrack takes over the position (and the
// playing state) of the video.
func (r *Reconciler) OnMultitrackReady(ctx context.Context, ready bool) (_err error) {
	logger.Tracef(ctx, "OnMultitrackReady(%v)", ready)
	defer func() { logger.Tracef(ctx, "/OnMultitrackReady(%v): %v", ready, _err) }()

	r.locker.Lock()
	risingEdge := ready && !r.multitrackReady
	r.multitrackReady = ready
	if !risingEdge || r.source == AudioSourceMultitrack {
		r.locker.Unlock()
		return nil
	}
	r.source = AudioSourceMultitrack
	video, videoPlaying := r.video, r.videoPlaying
	if video != nil {
		from := r.saveVolumeLocked(ctx, video)
		r.stopCrossfade = Crossfader{
			Scheduler: r.scheduler,
			Duration:  r.config.CrossfadeDuration,
			Steps:     r.config.CrossfadeSteps,
		}.FadeOut(ctx, video, from, func() {
			logger.Debugf(ctx, "the video is muted, the multitrack is the audio source")
		})
	}
	r.locker.Unlock()
	logger.Debugf(ctx, "switching the audio source to the multitrack")

	if video == nil {
		return nil
	}
	ts, err := video.CurrentTime(ctx)
	if err != nil {
		return fmt.Errorf("unable to get the video position: %w", err)
	}
	r.multitrack.Seek(ctx, ts)
	r.rememberVideoTime(ts)
	if !videoPlaying {
		return nil
	}
	if err := r.multitrack.Play(ctx); err != nil {
		return fmt.Errorf("unable to start the multitrack: %w", err)
	}
	return nil
}

// target returns where the playback commands go.
func (r *Reconciler) target() (AudioSource, VideoPlayer) {
	r.locker.Lock()
	defer r.locker.Unlock()
	return r.source, r.video
}

// Play starts the playback on the authoritative side and mirrors it to
// the video.
func (r *Reconciler) Play(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Play")
	defer func() { logger.Tracef(ctx, "/Play: %v", _err) }()

	source, video := r.target()
	if source == AudioSourceVideoOnly {
		if video == nil {
			return ErrNoVideo
		}
		return video.Play(ctx)
	}
	if err := r.multitrack.Play(ctx); err != nil {
		return err
	}
	if video != nil {
		if err := video.Play(ctx); err != nil {
			logger.Warnf(ctx, "unable to start the video: %v", err)
		}
	}
	return nil
}

func (r *Reconciler) Pause(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Pause")
	defer func() { logger.Tracef(ctx, "/Pause: %v", _err) }()

	source, video := r.target()
	if source == AudioSourceVideoOnly {
		if video == nil {
			return ErrNoVideo
		}
		return video.Pause(ctx)
	}
	r.multitrack.Pause(ctx)
	if video != nil {
		if err := video.Pause(ctx); err != nil {
			logger.Warnf(ctx, "unable to pause the video: %v", err)
		}
	}
	return nil
}

func (r *Reconciler) Seek(ctx context.Context, ts time.Duration) (_err error) {
	logger.Tracef(ctx, "Seek(%v)", ts)
	defer func() { logger.Tracef(ctx, "/Seek(%v): %v", ts, _err) }()

	source, video := r.target()
	if source == AudioSourceVideoOnly {
		if video == nil {
			return ErrNoVideo
		}
		return video.SeekTo(ctx, ts)
	}
	ts = r.multitrack.Seek(ctx, ts)
	if video != nil {
		if err := video.SeekTo(ctx, ts); err != nil {
			logger.Warnf(ctx, "unable to seek the video to %v: %v", ts, err)
		}
		r.rememberVideoTime(ts)
	}
	return nil
}

// Stop pauses and rewinds to the beginning.
func (r *Reconciler) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	source, video := r.target()
	if source == AudioSourceVideoOnly {
		if video == nil {
			return ErrNoVideo
		}
		if err := video.Pause(ctx); err != nil {
			return err
		}
		return video.SeekTo(ctx, 0)
	}
	r.multitrack.Stop(ctx)
	if video != nil {
		if err := video.Pause(ctx); err != nil {
			logger.Warnf(ctx, "unable to pause the video: %v", err)
		}
		if err := video.SeekTo(ctx, 0); err != nil {
			logger.Warnf(ctx, "unable to rewind the video: %v", err)
		}
		r.rememberVideoTime(0)
	}
	return nil
}

// Reset returns to the video-only state, restoring the volume the video
// had before the crossfade.
func (r *Reconciler) Reset(ctx context.Context) {
	logger.Tracef(ctx, "Reset")
	defer func() { logger.Tracef(ctx, "/Reset") }()

	r.locker.Lock()
	if r.stopCrossfade != nil {
		r.stopCrossfade()
		r.stopCrossfade = nil
	}
	wasMultitrack := r.source == AudioSourceMultitrack
	video, volume, hasVolume := r.video, r.savedVolume, r.hasSavedVolume
	r.source = AudioSourceVideoOnly
	r.multitrackReady = false
	r.hasSavedVolume = false
	r.hasVideoTime = false
	r.locker.Unlock()

	if !wasMultitrack || video == nil {
		return
	}
	if hasVolume {
		if err := video.SetVolume(ctx, volume); err != nil {
			logger.Warnf(ctx, "unable to restore the video volume: %v", err)
		}
	}
	if err := video.UnMute(ctx); err != nil {
		logger.Warnf(ctx, "unable to unmute the video: %v", err)
	}
}

// Close stops following the video.
func (r *Reconciler) Close() {
	r.locker.Lock()
	defer r.locker.Unlock()
	for _, stop := range []clock.CancelFunc{r.stopCrossfade, r.stopPoll, r.stopDriftCheck} {
		if stop != nil {
			stop()
		}
	}
	r.stopCrossfade, r.stopPoll, r.stopDriftCheck = nil, nil, nil
}
