package audiograph

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/audio"
	"github.com/xaionaro-go/multitrack/pkg/clock"
)

type recordingPlayer struct {
	locker sync.Mutex
	format audio.PCMFormat
	reader io.Reader
	closed bool
}

func (p *recordingPlayer) Close() error {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPlayer) Ping(context.Context) error { return nil }

func (p *recordingPlayer) PlayPCM(
	_ context.Context,
	_ audio.SampleRate,
	_ audio.Channel,
	format audio.PCMFormat,
	_ time.Duration,
	reader io.Reader,
) (audio.PlayStream, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.format = format
	p.reader = reader
	return audio.StreamDummy{}, nil
}

func dummyPlayer(context.Context) *audio.Player {
	return &audio.Player{PlayerPCM: audio.PlayerPCMDummy{}}
}

func TestManagerSingleContext(t *testing.T) {
	m := NewManager(DefaultConfig(), clock.NewFake(time.Unix(0, 0)))
	c := m.Context()
	assert.Same(t, c, m.Context())
	assert.Same(t, m.Master(), m.Master())
	assert.Equal(t, []Node{c.Destination()}, m.Master().Outputs())
	assert.Equal(t, StateSuspended, c.State())
}

func TestManagerMasterVolumeIsClamped(t *testing.T) {
	m := NewManager(DefaultConfig(), clock.NewFake(time.Unix(0, 0)))
	m.SetMasterVolume(1.5)
	assert.Equal(t, 1.0, m.MasterVolume())
	assert.Equal(t, 1.0, m.Master().Gain())
	m.SetMasterVolume(-1)
	assert.Equal(t, 0.0, m.Master().Gain())
	m.SetMasterVolume(0.3)
	assert.Equal(t, 0.3, m.Master().Gain())
}

func TestManagerEnsureRunningWithoutOutput(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.OpenPlayer = dummyPlayer
	m := NewManager(cfg, clock.NewFake(time.Unix(0, 0)))

	err := m.EnsureRunning(ctx)
	assert.ErrorIs(t, err, ErrContextUnavailable)
	assert.Equal(t, StateSuspended, m.Context().State())
}

func TestManagerSilentOutputIsPaced(t *testing.T) {
	ctx := context.Background()
	scheduler := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.OpenPlayer = dummyPlayer
	cfg.AllowSilentOutput = true
	m := NewManager(cfg, scheduler)

	require.NoError(t, m.EnsureRunning(ctx))
	require.NoError(t, m.EnsureRunning(ctx))
	c := m.Context()
	assert.Equal(t, StateRunning, c.State())

	scheduler.Advance(time.Second)
	rendered := c.CurrentTime()
	assert.InDelta(t, 1.0, rendered.Seconds(), 0.01)

	require.NoError(t, m.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.Zero(t, scheduler.Pending())
}

func TestManagerEnsureRunningOpensPlayer(t *testing.T) {
	ctx := context.Background()
	player := &recordingPlayer{}
	cfg := DefaultConfig()
	cfg.OpenPlayer = func(context.Context) *audio.Player { return audio.NewPlayer(player) }
	m := NewManager(cfg, clock.NewFake(time.Unix(0, 0)))

	require.NoError(t, m.EnsureRunning(ctx))
	assert.Equal(t, audio.PCMFormatFloat32LE, player.format)
	require.NotNil(t, player.reader)

	buf := make([]byte, 16)
	n, err := player.reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	require.NoError(t, m.Close())
	assert.True(t, player.closed)
}

func TestManagerCloseRecreates(t *testing.T) {
	m := NewManager(DefaultConfig(), clock.NewFake(time.Unix(0, 0)))
	m.SetMasterVolume(0.5)
	c0 := m.Context()
	require.NoError(t, m.Close())

	c1 := m.Context()
	assert.NotSame(t, c0, c1)
	assert.Equal(t, StateSuspended, c1.State())
	assert.Equal(t, 0.5, m.Master().Gain())
}
