// Package session is the control surface of a karaoke session: it wires the
// mixer state, the multitrack orchestrator, the video reconciler and the
// preferences together.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/effects"
	"github.com/xaionaro-go/multitrack/pkg/media"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
	"github.com/xaionaro-go/multitrack/pkg/orchestrator"
	"github.com/xaionaro-go/multitrack/pkg/preferences"
	"github.com/xaionaro-go/multitrack/pkg/reconciler"
	"github.com/xaionaro-go/multitrack/pkg/trackprocessor"
)

var ErrEffectUnavailable = errors.New("the effect is unavailable")

type Config struct {
	Orchestrator orchestrator.Config
	Reconciler   reconciler.Config
	Preferences  preferences.Config
}

func DefaultConfig() Config {
	return Config{
		Orchestrator: orchestrator.DefaultConfig(),
		Reconciler:   reconciler.DefaultConfig(),
		Preferences:  preferences.DefaultConfig(),
	}
}

// Dependencies are the process-wide collaborators of a Session.
type Dependencies struct {
	// Audio is the audio context manager of the process.
	Audio *audiograph.Manager

	// Effects is the loader of the effects runtime; if nil a new one is
	// used.
	Effects *effects.Loader

	Media     media.Factory
	Resolver  media.URLResolver
	Scheduler clock.Scheduler

	// Preferences is optional.
	Preferences preferences.Storage
}

type Session struct {
	audio        *audiograph.Manager
	store        *mixer.Store
	orchestrator *orchestrator.Orchestrator
	reconciler   *reconciler.Reconciler
	preferences  *preferences.Bridge
}

// New returns a session; ctx is used for the logging of the background
// activity.
func New(ctx context.Context, cfg Config, deps Dependencies) *Session {
	if deps.Effects == nil {
		deps.Effects = effects.NewLoader()
	}
	store, transport := mixer.NewStore()
	orch := orchestrator.New(ctx, cfg.Orchestrator, orchestrator.Dependencies{
		Store:     store,
		Transport: transport,
		Audio:     deps.Audio,
		Effects:   deps.Effects,
		Media:     deps.Media,
		Resolver:  deps.Resolver,
		Scheduler: deps.Scheduler,
	})
	s := &Session{
		audio:        deps.Audio,
		store:        store,
		orchestrator: orch,
		reconciler:   reconciler.New(ctx, cfg.Reconciler, deps.Scheduler, orch),
	}
	if deps.Preferences != nil {
		s.preferences = preferences.New(ctx, cfg.Preferences, deps.Preferences, store, deps.Scheduler)
	}
	return s
}

// Store is the mixer state of the session, for reading and subscribing.
func (s *Session) Store() *mixer.Store {
	return s.store
}

// LoadTracks loads the tracks; key identifies the session for the
// preferences. It succeeds if at least one track is loaded.
func (s *Session) LoadTracks(ctx context.Context, key string, ids ...mixer.TrackID) (_err error) {
	logger.Tracef(ctx, "LoadTracks(%s, %v)", key, ids)
	defer func() { logger.Tracef(ctx, "/LoadTracks(%s, %v): %v", key, ids, _err) }()

	if s.preferences != nil {
		if err := s.preferences.SetKey(ctx, key); err != nil {
			logger.Errorf(ctx, "unable to save the preferences: %v", err)
		}
	}

	loadErr := s.orchestrator.LoadTracks(ctx, ids)
	if !s.orchestrator.IsReady() {
		return loadErr
	}

	if s.preferences != nil {
		restored, err := s.preferences.Restore(ctx)
		if err != nil {
			logger.Errorf(ctx, "unable to restore the preferences: %v", err)
		}
		for _, id := range restored {
			if err := s.orchestrator.SyncEffects(ctx, id); err != nil {
				logger.Warnf(ctx, "unable to restore the effects of %s: %v", id, err)
			}
		}
	}

	if err := s.reconciler.OnMultitrackReady(ctx, true); err != nil {
		logger.Warnf(ctx, "unable to hand off to the multitrack: %v", err)
	}
	return loadErr
}

func (s *Session) IsReady() bool {
	return s.orchestrator.IsReady()
}

// Play starts the playback. It must be called on a user gesture: it
// starts the audio output first.
func (s *Session) Play(ctx context.Context) error {
	if err := s.audio.EnsureRunning(ctx); err != nil {
		return fmt.Errorf("unable to start the audio output: %w", err)
	}
	return s.reconciler.Play(ctx)
}

func (s *Session) Pause(ctx context.Context) error {
	return s.reconciler.Pause(ctx)
}

func (s *Session) Stop(ctx context.Context) error {
	return s.reconciler.Stop(ctx)
}

func (s *Session) Seek(ctx context.Context, ts time.Duration) error {
	return s.reconciler.Seek(ctx, ts)
}

func (s *Session) SetVolume(id mixer.TrackID, volume float64) error {
	return s.store.SetVolume(id, volume)
}

func (s *Session) SetMuted(id mixer.TrackID, muted bool) error {
	return s.store.SetMuted(id, muted)
}

func (s *Session) SetSolo(id mixer.TrackID, solo bool) error {
	return s.store.SetSolo(id, solo)
}

func (s *Session) SetPan(id mixer.TrackID, pan float64) error {
	return s.store.SetPan(id, pan)
}

// EnableEffect enables the effect on the track. If the effect cannot be
// used it stays disabled and the playback is not affected.
func (s *Session) EnableEffect(ctx context.Context, id mixer.TrackID, params mixer.EffectParams) (_err error) {
	if params == nil {
		return fmt.Errorf("no effect parameters provided")
	}
	t := params.EffectType()
	logger.Tracef(ctx, "EnableEffect(%s, %s)", id, t)
	defer func() { logger.Tracef(ctx, "/EnableEffect(%s, %s): %v", id, t, _err) }()

	if err := s.store.SetEffect(id, t, true, params); err != nil {
		return err
	}
	err := s.orchestrator.SyncEffects(ctx, id)
	if err == nil {
		return nil
	}
	logger.Warnf(ctx, "unable to enable %s on %s: %v", t, id, err)
	if err := s.store.SetEffect(id, t, false, nil); err != nil {
		logger.Errorf(ctx, "unable to mark %s of %s as disabled: %v", t, id, err)
	}
	if err := s.orchestrator.SyncEffects(ctx, id); err != nil {
		logger.Debugf(ctx, "unable to re-sync the effects of %s: %v", id, err)
	}
	return fmt.Errorf("%w: %w", ErrEffectUnavailable, err)
}

func (s *Session) DisableEffect(ctx context.Context, id mixer.TrackID, t mixer.EffectType) error {
	if err := s.store.SetEffect(id, t, false, nil); err != nil {
		return err
	}
	return s.orchestrator.SyncEffects(ctx, id)
}

// UpdateEffectParams changes the parameters of the effect without
// changing whether it is enabled.
func (s *Session) UpdateEffectParams(ctx context.Context, id mixer.TrackID, params mixer.EffectParams) error {
	if params == nil {
		return fmt.Errorf("no effect parameters provided")
	}
	track, ok := s.store.Track(id)
	if !ok {
		return fmt.Errorf("%w: %s", mixer.ErrUnknownTrack, id)
	}
	t := params.EffectType()
	if err := s.store.SetEffect(id, t, track.Effect(t).Enabled, params); err != nil {
		return err
	}
	return s.orchestrator.SyncEffects(ctx, id)
}

// Processor returns the processor of a loaded track, for the visualization
// taps.
func (s *Session) Processor(id mixer.TrackID) (*trackprocessor.Processor, bool) {
	return s.orchestrator.Processor(id)
}

func (s *Session) SetMasterVolume(volume float64) {
	s.audio.SetMasterVolume(volume)
}

func (s *Session) MasterVolume() float64 {
	return s.audio.MasterVolume()
}

func (s *Session) AudioSource() reconciler.AudioSource {
	return s.reconciler.AudioSource()
}

// BindVideo attaches the external video player.
func (s *Session) BindVideo(ctx context.Context, video reconciler.VideoPlayer) {
	s.reconciler.BindVideo(ctx, video)
}

// NotifyVideoState reports whether the video is playing.
func (s *Session) NotifyVideoState(playing bool) {
	s.reconciler.NotifyVideoState(playing)
}

// Reset ends the session: the tracks are released, the audio is given
// back to the video, and the session may be loaded again.
func (s *Session) Reset(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Reset")
	defer func() { logger.Tracef(ctx, "/Reset: %v", _err) }()

	var mErr *multierror.Error
	if s.preferences != nil {
		if err := s.preferences.Flush(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if err := s.orchestrator.Dispose(ctx); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	s.reconciler.Reset(ctx)
	if s.preferences != nil {
		s.preferences.Forget()
	}
	return mErr.ErrorOrNil()
}

// Close releases the session. The audio context manager is not closed.
func (s *Session) Close(ctx context.Context) error {
	var mErr *multierror.Error
	if s.preferences != nil {
		if err := s.preferences.Close(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	s.reconciler.Close()
	if err := s.orchestrator.Close(ctx); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	return mErr.ErrorOrNil()
}
