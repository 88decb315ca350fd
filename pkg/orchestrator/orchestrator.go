// Package orchestrator loads the tracks of a session and keeps their
// playback consistent with the transport state of the mixer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/multitrack/pkg/audiograph"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/effects"
	"github.com/xaionaro-go/multitrack/pkg/media"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
	"github.com/xaionaro-go/multitrack/pkg/trackprocessor"
	"github.com/xaionaro-go/observability"
)

var (
	ErrNoTracksAvailable = errors.New("no tracks available")
	ErrLoadTimeout       = errors.New("track loading timed out")
	ErrNotReady          = errors.New("the tracks are not loaded")
	ErrDisposed          = errors.New("the orchestrator was disposed")
)

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Store     *mixer.Store
	Transport *mixer.TransportWriter
	Audio     *audiograph.Manager
	Effects   *effects.Loader
	Media     media.Factory
	Resolver  media.URLResolver
	Scheduler clock.Scheduler
}

type trackInstance struct {
	id        mixer.TrackID
	element   media.Element
	processor *trackprocessor.Processor
}

// Orchestrator owns the track instances of a session. It is the only
// writer of the transport state.
type Orchestrator struct {
	Dependencies
	config Config
	ctx    context.Context

	locker      sync.Mutex
	resetLocker sync.Mutex
	generation  uint64
	loadStarted bool
	ready       bool
	instances   map[mixer.TrackID]*trackInstance
	order       []mixer.TrackID
	cancelLoad  context.CancelFunc
	stopTick    clock.CancelFunc
	unsubscribe func()
}

// New returns an orchestrator reacting to every change of the store; ctx
// is used for the logging of the background activity.
func New(ctx context.Context, cfg Config, deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		Dependencies: deps,
		config:       cfg,
		ctx:          ctx,
		instances:    map[mixer.TrackID]*trackInstance{},
	}
	o.unsubscribe = deps.Store.Subscribe(func(change mixer.Change) {
		if change.Reset {
			return
		}
		o.reconcile()
	})
	return o
}

type loadResult struct {
	id       mixer.TrackID
	instance *trackInstance
	err      error
}

// LoadTracks loads the tracks in parallel. It succeeds if at least one
// track is loaded; the failures of the others are recorded in their
// states. Only the first call after New or Dispose has an effect.
func (o *Orchestrator) LoadTracks(ctx context.Context, ids []mixer.TrackID) (_err error) {
	logger.Tracef(ctx, "LoadTracks(%v)", ids)
	defer func() { logger.Tracef(ctx, "/LoadTracks(%v): %v", ids, _err) }()

	o.locker.Lock()
	if o.loadStarted {
		o.locker.Unlock()
		logger.Debugf(ctx, "the tracks are already loaded or being loaded")
		return nil
	}
	o.loadStarted = true
	generation := o.generation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelLoad = cancel
	o.locker.Unlock()

	master := o.Audio.Master()
	results := make([]loadResult, len(ids))
	var wg sync.WaitGroup
	for idx, id := range ids {
		wg.Add(1)
		observability.Go(ctx, func() {
			defer wg.Done()
			instance, err := o.loadTrack(ctx, generation, master, id)
			results[idx] = loadResult{id: id, instance: instance, err: err}
		})
	}
	wg.Wait()

	o.locker.Lock()
	if o.generation != generation {
		o.locker.Unlock()
		for _, result := range results {
			if result.instance != nil {
				o.release(ctx, result.instance)
			}
		}
		return ErrDisposed
	}
	for _, result := range results {
		if result.instance == nil {
			continue
		}
		o.instances[result.id] = result.instance
		o.order = append(o.order, result.id)
	}
	o.ready = len(o.order) > 0
	o.cancelLoad = nil
	o.locker.Unlock()

	var (
		mErr     *multierror.Error
		duration time.Duration
		loaded   int
	)
	for _, result := range results {
		if result.err != nil {
			logger.Warnf(ctx, "unable to load track %s: %v", result.id, result.err)
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", result.id, result.err))
			if err := o.Store.SetLoadError(result.id, result.err); err != nil {
				logger.Debugf(ctx, "unable to record the error of %s: %v", result.id, err)
			}
			continue
		}
		loaded++
		trackDuration := result.instance.element.Duration()
		duration = max(duration, trackDuration)
		if err := o.Store.SetLoaded(result.id, trackDuration); err != nil {
			logger.Debugf(ctx, "unable to mark %s as loaded: %v", result.id, err)
		}
	}
	logger.Debugf(ctx, "loaded %d of %d tracks", loaded, len(ids))
	logger.Tracef(ctx, "tracks: %s", spew.Sdump(o.Store.Tracks()))

	if loaded == 0 {
		if err := mErr.ErrorOrNil(); err != nil {
			return fmt.Errorf("%w: %w", ErrNoTracksAvailable, err)
		}
		return ErrNoTracksAvailable
	}
	o.Transport.SetDuration(duration)
	return nil
}

func (o *Orchestrator) loadTrack(
	ctx context.Context,
	generation uint64,
	master *audiograph.GainNode,
	id mixer.TrackID,
) (_ *trackInstance, _err error) {
	logger.Tracef(ctx, "loadTrack(%s)", id)
	defer func() { logger.Tracef(ctx, "/loadTrack(%s): %v", id, _err) }()

	url, resolveErr := o.Resolver.ResolveTrackURL(id)
	if err := o.beginLoad(generation, id, url); err != nil {
		return nil, err
	}
	if resolveErr != nil {
		return nil, resolveErr
	}

	loadCtx, cancel := o.Scheduler.WithTimeout(ctx, o.config.LoadTimeout)
	defer cancel()

	element, err := o.Media.NewElement(loadCtx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", url, err)
	}
	if err := element.WaitMetadata(loadCtx); err != nil {
		element.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrLoadTimeout, o.config.LoadTimeout)
		}
		return nil, err
	}

	processor, err := trackprocessor.New(master, o.Effects)
	if err != nil {
		element.Close()
		return nil, fmt.Errorf("unable to create the track processor: %w", err)
	}
	if err := processor.ConnectSource(element); err != nil {
		element.Close()
		processor.Dispose()
		return nil, fmt.Errorf("unable to connect the source: %w", err)
	}
	return &trackInstance{
		id:        id,
		element:   element,
		processor: processor,
	}, nil
}

// IsReady reports if at least one track is loaded.
func (o *Orchestrator) IsReady() bool {
	o.locker.Lock()
	defer o.locker.Unlock()
	return o.ready
}

// Processor returns the processor of a loaded track, for the visualization
// taps.
func (o *Orchestrator) Processor(id mixer.TrackID) (*trackprocessor.Processor, bool) {
	o.locker.Lock()
	defer o.locker.Unlock()
	instance, ok := o.instances[id]
	if !ok {
		return nil, false
	}
	return instance.processor, true
}

// Position is the native playback position of the first loaded track.
func (o *Orchestrator) Position() (time.Duration, bool) {
	o.locker.Lock()
	defer o.locker.Unlock()
	instance := o.firstInstanceLocked()
	if instance == nil {
		return 0, false
	}
	return instance.element.CurrentTime(), true
}

// CurrentTime is the position of the transport.
func (o *Orchestrator) CurrentTime() time.Duration {
	return o.Store.Transport().CurrentTime
}

func (o *Orchestrator) Playing() bool {
	return o.Store.Transport().Playing
}

func (o *Orchestrator) firstInstanceLocked() *trackInstance {
	if len(o.order) == 0 {
		return nil
	}
	return o.instances[o.order[0]]
}

func (o *Orchestrator) Play(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Play")
	defer func() { logger.Tracef(ctx, "/Play: %v", _err) }()

	if err := o.Audio.EnsureRunning(ctx); err != nil {
		return fmt.Errorf("unable to start the audio context: %w", err)
	}
	if !o.IsReady() {
		return ErrNotReady
	}
	transport := o.Store.Transport()
	if transport.Duration > 0 && transport.CurrentTime >= transport.Duration {
		o.Seek(ctx, 0)
	}
	o.Transport.SetPlaying(true)
	return nil
}

func (o *Orchestrator) Pause(ctx context.Context) {
	logger.Tracef(ctx, "Pause")
	defer func() { logger.Tracef(ctx, "/Pause") }()

	if pos, ok := o.Position(); ok && o.Store.Transport().Playing {
		o.Transport.SetCurrentTime(pos)
	}
	o.Transport.SetPlaying(false)
}

// Stop pauses and rewinds to the beginning.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.Pause(ctx)
	o.Seek(ctx, 0)
}

// Seek moves every track to ts, clamped into [0, duration]; an unknown
// (zero) duration does not limit the position. It returns the clamped
// position.
func (o *Orchestrator) Seek(ctx context.Context, ts time.Duration) time.Duration {
	logger.Tracef(ctx, "Seek(%v)", ts)
	defer func() { logger.Tracef(ctx, "/Seek(%v)", ts) }()

	ts = max(ts, 0)
	if duration := o.Store.Transport().Duration; duration > 0 {
		ts = min(ts, duration)
	}

	o.Transport.SetSeeking(true)
	o.locker.Lock()
	for _, id := range o.order {
		o.instances[id].element.SetCurrentTime(ts)
	}
	o.locker.Unlock()
	o.Transport.SetCurrentTime(ts)
	o.Transport.SetSeeking(false)
	return ts
}

// SyncEffects applies the effect state stored for the track to its effect
// chain. A failing effect does not prevent the others from being applied.
func (o *Orchestrator) SyncEffects(ctx context.Context, id mixer.TrackID) (_err error) {
	logger.Tracef(ctx, "SyncEffects(%s)", id)
	defer func() { logger.Tracef(ctx, "/SyncEffects(%s): %v", id, _err) }()

	processor, ok := o.Processor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReady, id)
	}
	track, ok := o.Store.Track(id)
	if !ok {
		return fmt.Errorf("%w: %s", mixer.ErrUnknownTrack, id)
	}

	anyEnabled := false
	for _, effect := range track.Effects {
		anyEnabled = anyEnabled || effect.Enabled
	}
	if !anyEnabled && processor.ExistingEffectChain() == nil {
		return nil
	}

	chain, err := processor.EffectChain()
	if err != nil {
		return err
	}
	var mErr *multierror.Error
	for _, t := range mixer.EffectTypes() {
		effect := track.Effect(t)
		switch {
		case effect.Enabled:
			err = chain.Enable(ctx, effect.Params)
		case chain.Enabled(t):
			err = chain.Disable(t)
		default:
			if _, exists := chain.Params(t); exists {
				err = chain.UpdateParams(ctx, effect.Params)
			}
		}
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to apply %s: %w", t, err))
			err = nil
		}
	}
	return mErr.ErrorOrNil()
}

// reconcile brings the tracks in line with the mixer state: the position,
// the effective volume, the pan and the playing state.
func (o *Orchestrator) reconcile() {
	ctx := o.ctx
	transport := o.Store.Transport()

	o.locker.Lock()
	defer o.locker.Unlock()
	if !o.ready {
		return
	}

	for _, id := range o.order {
		instance := o.instances[id]
		element := instance.element
		if !transport.Playing {
			element.Pause()
		}

		pos := element.CurrentTime()
		ended := element.Duration() > 0 && pos >= element.Duration() && transport.CurrentTime >= element.Duration()
		if !ended && !transport.Seeking {
			drift := pos - transport.CurrentTime
			if drift > o.config.DriftThreshold || drift < -o.config.DriftThreshold {
				logger.Debugf(ctx, "track %s drifted by %v, snapping to %v", id, drift, transport.CurrentTime)
				element.SetCurrentTime(transport.CurrentTime)
			}
		}

		if track, ok := o.Store.Track(id); ok {
			instance.processor.SetVolume(track.Volume)
			instance.processor.SetPan(track.Pan)
		}
		if o.Store.IsAudible(id) {
			instance.processor.Unmute()
		} else {
			instance.processor.Mute()
		}

		if transport.Playing && !ended && element.Paused() {
			if err := element.Play(ctx); err != nil {
				logger.Warnf(ctx, "unable to start track %s: %v", id, err)
			}
		}
	}

	switch {
	case transport.Playing && o.stopTick == nil:
		o.stopTick = o.Scheduler.Every(o.config.SyncTickInterval, o.tick)
	case !transport.Playing && o.stopTick != nil:
		o.stopTick()
		o.stopTick = nil
	}
}

// tick copies the position of the first track still playing into the
// transport state, and stops the transport when every track has ended.
func (o *Orchestrator) tick() {
	o.locker.Lock()
	var (
		pos     time.Duration
		playing bool
	)
	for _, id := range o.order {
		element := o.instances[id].element
		if !element.Paused() {
			pos, playing = element.CurrentTime(), true
			break
		}
	}
	o.locker.Unlock()

	transport := o.Store.Transport()
	if transport.Seeking || !transport.Playing {
		return
	}
	if !playing {
		logger.Debugf(o.ctx, "all the tracks ended")
		o.Transport.SetCurrentTime(transport.Duration)
		o.Transport.SetPlaying(false)
		return
	}
	o.Transport.SetCurrentTime(pos)
}

// release pauses and closes the media element, then disposes the processor.
func (o *Orchestrator) release(ctx context.Context, instance *trackInstance) error {
	var mErr *multierror.Error
	instance.element.Pause()
	if err := instance.element.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close the media of %s: %w", instance.id, err))
	}
	if err := instance.processor.Dispose(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to dispose the processor of %s: %w", instance.id, err))
	}
	if err := mErr.ErrorOrNil(); err != nil {
		logger.Warnf(ctx, "%v", err)
		return err
	}
	return nil
}

// beginLoad marks the track as loading unless the orchestrator was
// disposed since the load started. It is serialized with the reset of
// the store in Dispose, so a disposed load never leaves a loading track
// behind.
func (o *Orchestrator) beginLoad(generation uint64, id mixer.TrackID, url string) error {
	o.resetLocker.Lock()
	defer o.resetLocker.Unlock()
	o.locker.Lock()
	disposed := o.generation != generation
	o.locker.Unlock()
	if disposed {
		return ErrDisposed
	}
	return o.Store.BeginLoad(id, url)
}

// Dispose releases every track and resets the mixer state. The
// orchestrator may load tracks again afterwards.
func (o *Orchestrator) Dispose(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Dispose")
	defer func() { logger.Tracef(ctx, "/Dispose: %v", _err) }()

	o.locker.Lock()
	o.generation++
	o.loadStarted = false
	o.ready = false
	if o.cancelLoad != nil {
		o.cancelLoad()
		o.cancelLoad = nil
	}
	if o.stopTick != nil {
		o.stopTick()
		o.stopTick = nil
	}
	instances := make([]*trackInstance, 0, len(o.order))
	for _, id := range o.order {
		instances = append(instances, o.instances[id])
	}
	o.instances = map[mixer.TrackID]*trackInstance{}
	o.order = nil
	o.locker.Unlock()

	var mErr *multierror.Error
	for _, instance := range instances {
		if err := o.release(ctx, instance); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	o.resetLocker.Lock()
	o.Transport.Reset()
	o.resetLocker.Unlock()
	return mErr.ErrorOrNil()
}

// Close disposes the orchestrator and stops following the store.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.unsubscribe()
	return o.Dispose(ctx)
}
