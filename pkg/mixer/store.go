// Package mixer contains the authoritative mixer state of a session: the
// per-track settings and the shared transport state. It contains no audio
// objects.
package mixer

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

var ErrUnknownTrack = errors.New("unknown track")

// Change describes a mutation of a Store.
type Change struct {
	// TrackID is the mutated track; it is the zero value for transport
	// changes and resets.
	TrackID   TrackID
	Transport bool
	Reset     bool
}

// Store is the single mutation surface of the mixer state. Every read
// returns a copy. Subscribers are notified after the mutation, outside of
// the Store lock, so they may read the Store.
//
// The transport state is writable only through the TransportWriter issued
// by NewStore.
type Store struct {
	locker    sync.Mutex
	tracks    map[TrackID]*TrackState
	order     []TrackID
	transport TransportState

	subscribersLocker sync.Mutex
	subscribers       map[uint64]func(Change)
	nextSubscriberID  uint64
}

// TransportWriter is the only handle that can write the transport state.
type TransportWriter struct {
	store *Store
}

func NewStore() (*Store, *TransportWriter) {
	s := &Store{
		tracks:      map[TrackID]*TrackState{},
		subscribers: map[uint64]func(Change){},
	}
	return s, &TransportWriter{store: s}
}

// Subscribe registers fn to be called after every mutation. The returned
// function unsubscribes.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subscribersLocker.Lock()
	defer s.subscribersLocker.Unlock()
	id := s.nextSubscriberID
	s.nextSubscriberID++
	s.subscribers[id] = fn
	return func() {
		s.subscribersLocker.Lock()
		defer s.subscribersLocker.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) notify(change Change) {
	s.subscribersLocker.Lock()
	ids := make([]uint64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.subscribersLocker.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// mutateTrack applies fn to the state of the track; with create the state
// is created if it does not exist.
func (s *Store) mutateTrack(id TrackID, create bool, fn func(*TrackState)) error {
	err := func() error {
		s.locker.Lock()
		defer s.locker.Unlock()
		track, ok := s.tracks[id]
		if !ok {
			if !create {
				return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
			}
			track = newTrackState(id)
			s.tracks[id] = track
			s.order = append(s.order, id)
		}
		fn(track)
		return nil
	}()
	if err != nil {
		return err
	}
	s.notify(Change{TrackID: id})
	return nil
}

// BeginLoad records a load attempt of the track, creating its state.
func (s *Store) BeginLoad(id TrackID, url string) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return s.mutateTrack(id, true, func(track *TrackState) {
		track.URL = url
		track.Loading = true
		track.Loaded = false
		track.Error = nil
	})
}

func (s *Store) SetLoaded(id TrackID, duration time.Duration) error {
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Loading = false
		track.Loaded = true
		track.Error = nil
		track.Duration = duration
	})
}

func (s *Store) SetLoadError(id TrackID, loadErr error) error {
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Loading = false
		track.Loaded = false
		track.Error = loadErr
	})
}

// SetVolume sets the volume of the track, clamped into [0, 1].
func (s *Store) SetVolume(id TrackID, volume float64) error {
	volume = clamp(volume, 0, 1)
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Volume = volume
	})
}

func (s *Store) SetMuted(id TrackID, muted bool) error {
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Muted = muted
	})
}

func (s *Store) SetSolo(id TrackID, solo bool) error {
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Solo = solo
	})
}

// SetPan sets the stereo position of the track, clamped into [-1, 1].
func (s *Store) SetPan(id TrackID, pan float64) error {
	pan = clamp(pan, -1, 1)
	return s.mutateTrack(id, false, func(track *TrackState) {
		track.Pan = pan
	})
}

// SetEffect sets the state of an effect of the track. A nil params keeps
// the current parameters.
func (s *Store) SetEffect(id TrackID, t EffectType, enabled bool, params EffectParams) error {
	if t < 0 || t >= endOfEffectType {
		return fmt.Errorf("invalid effect type %d", int(t))
	}
	if params != nil && params.EffectType() != t {
		return fmt.Errorf("parameters of %s were provided for %s", params.EffectType(), t)
	}
	return s.mutateTrack(id, false, func(track *TrackState) {
		effect := track.Effect(t)
		effect.Enabled = enabled
		if params != nil {
			effect.Params = params
		}
		track.Effects[t] = effect
	})
}

// ApplySettings overwrites the user-controlled state of a loaded track.
// Effects not mentioned in the settings are left intact.
func (s *Store) ApplySettings(id TrackID, settings TrackSettings) error {
	var notLoaded bool
	err := s.mutateTrack(id, false, func(track *TrackState) {
		if !track.Loaded {
			notLoaded = true
			return
		}
		track.Volume = clamp(settings.Volume, 0, 1)
		track.Muted = settings.Muted
		track.Solo = settings.Solo
		for t, effect := range settings.Effects {
			if t < 0 || t >= endOfEffectType {
				continue
			}
			if effect.Params == nil || effect.Params.EffectType() != t {
				effect.Params = track.Effect(t).Params
			}
			track.Effects[t] = effect
		}
	})
	if err != nil {
		return err
	}
	if notLoaded {
		return fmt.Errorf("track %s is not loaded", id)
	}
	return nil
}

// Track returns a copy of the state of the track.
func (s *Store) Track(id TrackID) (TrackState, bool) {
	s.locker.Lock()
	defer s.locker.Unlock()
	track, ok := s.tracks[id]
	if !ok {
		return TrackState{}, false
	}
	return track.clone(), true
}

// Tracks returns copies of all the track states in the order they were
// first attempted to load.
func (s *Store) Tracks() []TrackState {
	s.locker.Lock()
	defer s.locker.Unlock()
	result := make([]TrackState, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.tracks[id].clone())
	}
	return result
}

// LoadedTracks returns the IDs of the loaded tracks.
func (s *Store) LoadedTracks() []TrackID {
	s.locker.Lock()
	defer s.locker.Unlock()
	var result []TrackID
	for _, id := range s.order {
		if s.tracks[id].Loaded {
			result = append(result, id)
		}
	}
	return result
}

func (s *Store) Transport() TransportState {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.transport
}

func (s *Store) anySoloedLocked() bool {
	for _, track := range s.tracks {
		if track.Solo {
			return true
		}
	}
	return false
}

func (s *Store) isAudibleLocked(track *TrackState) bool {
	if s.anySoloedLocked() {
		return track.Solo
	}
	return !track.Muted
}

// IsAudible reports if the track is heard: if any track is soloed then
// only the soloed tracks are, otherwise every track which is not muted.
func (s *Store) IsAudible(id TrackID) bool {
	s.locker.Lock()
	defer s.locker.Unlock()
	track, ok := s.tracks[id]
	if !ok {
		return false
	}
	return s.isAudibleLocked(track)
}

// EffectiveVolume is the volume of the track if it is audible, and zero
// otherwise.
func (s *Store) EffectiveVolume(id TrackID) float64 {
	s.locker.Lock()
	defer s.locker.Unlock()
	track, ok := s.tracks[id]
	if !ok || !s.isAudibleLocked(track) {
		return 0
	}
	return track.Volume
}

func (w *TransportWriter) mutate(fn func(*TransportState)) {
	s := w.store
	func() {
		s.locker.Lock()
		defer s.locker.Unlock()
		fn(&s.transport)
	}()
	s.notify(Change{Transport: true})
}

func (w *TransportWriter) SetPlaying(playing bool) {
	w.mutate(func(t *TransportState) { t.Playing = playing })
}

func (w *TransportWriter) SetCurrentTime(ts time.Duration) {
	w.mutate(func(t *TransportState) { t.CurrentTime = ts })
}

func (w *TransportWriter) SetDuration(d time.Duration) {
	w.mutate(func(t *TransportState) { t.Duration = d })
}

func (w *TransportWriter) SetSeeking(seeking bool) {
	w.mutate(func(t *TransportState) { t.Seeking = seeking })
}

// Reset returns the whole Store (tracks and transport) to its initial
// empty state.
func (w *TransportWriter) Reset() {
	s := w.store
	func() {
		s.locker.Lock()
		defer s.locker.Unlock()
		s.tracks = map[TrackID]*TrackState{}
		s.order = nil
		s.transport = TransportState{}
	}()
	s.notify(Change{Reset: true})
}

func clamp(v, min, max float64) float64 {
	switch {
	case math.IsNaN(v):
		return min
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
