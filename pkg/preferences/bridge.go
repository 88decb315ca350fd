// Package preferences persists the mixer settings of the tracks of a
// session and restores them when the session is loaded again.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/multitrack/pkg/clock"
	"github.com/xaionaro-go/multitrack/pkg/mixer"
)

type Config struct {
	// DebounceWindow coalesces the changes made within it into a single
	// save.
	DebounceWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		DebounceWindow: 500 * time.Millisecond,
	}
}

// Bridge connects a mixer.Store to a Storage. The settings are saved
// under the key set by SetKey, but only after the key was restored, so
// that the defaults of a freshly loaded session never overwrite the saved
// settings.
type Bridge struct {
	config    Config
	storage   Storage
	store     *mixer.Store
	scheduler clock.Scheduler
	ctx       context.Context

	locker      sync.Mutex
	key         string
	restored    map[string]struct{}
	cancelSave  clock.CancelFunc
	unsubscribe func()
}

// New returns a Bridge following the changes of store. ctx is used for
// the background saves.
func New(
	ctx context.Context,
	cfg Config,
	storage Storage,
	store *mixer.Store,
	scheduler clock.Scheduler,
) *Bridge {
	b := &Bridge{
		config:    cfg,
		storage:   storage,
		store:     store,
		scheduler: scheduler,
		ctx:       ctx,
		restored:  map[string]struct{}{},
	}
	b.unsubscribe = store.Subscribe(func(change mixer.Change) {
		if change.Transport || change.Reset {
			return
		}
		b.scheduleSave()
	})
	return b
}

// SetKey sets the identifier the preferences are saved under. A pending
// save of the previous key is flushed.
func (b *Bridge) SetKey(ctx context.Context, key string) error {
	if err := b.Flush(ctx); err != nil {
		return err
	}
	b.locker.Lock()
	defer b.locker.Unlock()
	b.key = key
	return nil
}

func (b *Bridge) scheduleSave() {
	b.locker.Lock()
	defer b.locker.Unlock()
	if _, ok := b.restored[b.key]; !ok || b.key == "" {
		return
	}
	if b.cancelSave != nil {
		b.cancelSave()
	}
	key := b.key
	b.cancelSave = b.scheduler.After(b.config.DebounceWindow, func() {
		b.locker.Lock()
		b.cancelSave = nil
		b.locker.Unlock()
		if err := b.save(b.ctx, key); err != nil {
			logger.Errorf(b.ctx, "unable to save the preferences: %v", err)
		}
	})
}

func (b *Bridge) save(ctx context.Context, key string) (_err error) {
	logger.Tracef(ctx, "save(%s)", key)
	defer func() { logger.Tracef(ctx, "/save(%s): %v", key, _err) }()

	doc := Document{
		Tracks:  map[mixer.TrackID]TrackPreferences{},
		SavedAt: b.scheduler.Now().UTC(),
	}
	for _, track := range b.store.Tracks() {
		if !track.Loaded {
			continue
		}
		doc.Tracks[track.ID] = newTrackPreferences(track)
	}
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("unable to serialize the preferences: %w", err)
	}
	if err := b.storage.Save(ctx, key, value); err != nil {
		return fmt.Errorf("unable to save the preferences of '%s': %w", key, err)
	}
	return nil
}

// Flush saves the pending changes immediately.
func (b *Bridge) Flush(ctx context.Context) error {
	b.locker.Lock()
	if b.cancelSave == nil {
		b.locker.Unlock()
		return nil
	}
	b.cancelSave()
	b.cancelSave = nil
	key := b.key
	b.locker.Unlock()
	return b.save(ctx, key)
}

// Restore applies the saved settings of the current key to the loaded
// tracks. It has an effect only once per key until Forget, and returns
// the tracks it changed.
func (b *Bridge) Restore(ctx context.Context) (_ret []mixer.TrackID, _err error) {
	b.locker.Lock()
	key := b.key
	_, done := b.restored[key]
	if key == "" || done {
		b.locker.Unlock()
		return nil, nil
	}
	b.restored[key] = struct{}{}
	b.locker.Unlock()

	logger.Tracef(ctx, "Restore(%s)", key)
	defer func() { logger.Tracef(ctx, "/Restore(%s): %v %v", key, _ret, _err) }()

	value, err := b.storage.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		logger.Debugf(ctx, "no preferences are saved for '%s'", key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load the preferences of '%s': %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("unable to parse the preferences of '%s': %w", key, err)
	}
	logger.Debugf(ctx, "restoring the preferences of '%s' saved at %v", key, doc.SavedAt)

	loaded := map[mixer.TrackID]struct{}{}
	for _, id := range b.store.LoadedTracks() {
		loaded[id] = struct{}{}
	}
	var applied []mixer.TrackID
	for id, prefs := range doc.Tracks {
		if _, ok := loaded[id]; !ok {
			logger.Debugf(ctx, "track %s is not loaded, skipping its preferences", id)
			continue
		}
		if err := b.store.ApplySettings(id, prefs.settings()); err != nil {
			logger.Warnf(ctx, "unable to apply the preferences of %s: %v", id, err)
			continue
		}
		applied = append(applied, id)
	}
	sort.Slice(applied, func(i, j int) bool {
		return applied[i].String() < applied[j].String()
	})
	return applied, nil
}

// Forget makes every key restorable again.
func (b *Bridge) Forget() {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.restored = map[string]struct{}{}
}

// Close flushes the pending changes and stops following the store.
func (b *Bridge) Close(ctx context.Context) error {
	b.unsubscribe()
	return b.Flush(ctx)
}
