package audiograph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/multitrack/pkg/audio"
	"github.com/xaionaro-go/multitrack/pkg/clock"
)

// ErrContextUnavailable means there is no way to output audio.
var ErrContextUnavailable = errors.New("audio output is not available")

const silentOutputPacingInterval = 10 * time.Millisecond

type Config struct {
	SampleRate    float64
	QuantumFrames int
	BufferSize    time.Duration

	// AllowSilentOutput makes EnsureRunning succeed even if the only
	// available player is the dummy one: the graph is then rendered in
	// real time and the output is discarded.
	AllowSilentOutput bool

	// OpenPlayer overrides audio.NewPlayerAuto.
	OpenPlayer func(ctx context.Context) *audio.Player
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    DefaultSampleRate,
		QuantumFrames: DefaultQuantumFrames,
		BufferSize:    audio.BufferSize,
	}
}

// Manager owns the single audio Context of the process and its master gain
// stage. Both are created on first access and shared by every caller until
// Close.
type Manager struct {
	config    Config
	scheduler clock.Scheduler

	locker       sync.Mutex
	context      *Context
	master       *GainNode
	masterVolume float64
	player       *audio.Player
	playStream   audio.PlayStream
	stopPacing   clock.CancelFunc
}

func NewManager(cfg Config, scheduler clock.Scheduler) *Manager {
	if cfg.OpenPlayer == nil {
		cfg.OpenPlayer = audio.NewPlayerAuto
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = audio.BufferSize
	}
	return &Manager{
		config:       cfg,
		scheduler:    scheduler,
		masterVolume: 1,
	}
}

// Context returns the audio Context, creating it if needed.
func (m *Manager) Context() *Context {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.contextLocked()
}

// Master returns the master gain node every track is connected to.
func (m *Manager) Master() *GainNode {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.contextLocked()
	return m.master
}

func (m *Manager) contextLocked() *Context {
	if m.context != nil {
		return m.context
	}
	c := NewContext(m.config.SampleRate, m.config.QuantumFrames)
	master := c.NewGainNode()
	master.SetGain(m.masterVolume)
	if err := master.Connect(c.Destination()); err != nil {
		// both nodes were just created in the same context
		panic(err)
	}
	m.context = c
	m.master = master
	return c
}

// EnsureRunning starts the output of the Context. It is a no-op if the
// Context is already running.
func (m *Manager) EnsureRunning(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "EnsureRunning")
	defer func() { logger.Tracef(ctx, "/EnsureRunning: %v", _err) }()

	m.locker.Lock()
	defer m.locker.Unlock()

	c := m.contextLocked()
	if c.State() == StateRunning {
		return nil
	}

	if m.player == nil {
		if err := m.startOutputLocked(ctx, c); err != nil {
			return err
		}
	}

	if err := c.Resume(); err != nil {
		return fmt.Errorf("unable to resume the audio context: %w", err)
	}
	logger.Debugf(ctx, "the audio context is running at %v Hz", c.SampleRate())
	return nil
}

func (m *Manager) startOutputLocked(ctx context.Context, c *Context) error {
	player := m.config.OpenPlayer(ctx)
	if player == nil || player.IsDummy() {
		if !m.config.AllowSilentOutput {
			return ErrContextUnavailable
		}
		logger.Warnf(ctx, "no audio output is available, rendering silently")
		m.player = player
		m.stopPacing = m.paceSilentOutput(c)
		return nil
	}

	stream, err := player.PlayPCM(
		ctx,
		audio.SampleRate(c.SampleRate()),
		audio.Channel(NumChannels),
		audio.PCMFormatFloat32LE,
		m.config.BufferSize,
		newRenderReader(c),
	)
	if err != nil {
		_ = player.Close()
		return fmt.Errorf("%w: unable to start the playback: %w", ErrContextUnavailable, err)
	}
	m.player = player
	m.playStream = stream
	return nil
}

// paceSilentOutput renders the graph in real time measured by the scheduler.
func (m *Manager) paceSilentOutput(c *Context) clock.CancelFunc {
	startedAt := m.scheduler.Now()
	var renderedFrames uint64
	return m.scheduler.Every(silentOutputPacingInterval, func() {
		elapsed := m.scheduler.Now().Sub(startedAt)
		dueFrames := uint64(elapsed.Seconds() * c.SampleRate())

		c.graphLocker.Lock()
		defer c.graphLocker.Unlock()
		for renderedFrames+uint64(c.quantumFrames) <= dueFrames {
			renderedFrames += uint64(c.quantumFrames)
			if c.state != StateRunning {
				continue
			}
			c.renderQuantumLocked(c.quantumFrames)
		}
	})
}

// SetMasterVolume sets the gain of the master stage. The value is clamped
// into [0, 1] and applied immediately.
func (m *Manager) SetMasterVolume(v float64) {
	v = clamp(v, 0, 1)
	m.locker.Lock()
	defer m.locker.Unlock()
	m.masterVolume = v
	if m.master != nil {
		m.master.SetGain(v)
	}
}

func (m *Manager) MasterVolume() float64 {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.masterVolume
}

// Close releases the output and the Context. The next access creates
// a new Context.
func (m *Manager) Close() error {
	m.locker.Lock()
	defer m.locker.Unlock()

	var mErr *multierror.Error
	if m.stopPacing != nil {
		m.stopPacing()
		m.stopPacing = nil
	}
	if m.context != nil {
		m.context.Close()
	}
	if m.playStream != nil {
		if err := m.playStream.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the play stream: %w", err))
		}
		m.playStream = nil
	}
	if m.player != nil {
		if err := m.player.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the player: %w", err))
		}
		m.player = nil
	}
	m.context = nil
	m.master = nil
	return mErr.ErrorOrNil()
}
