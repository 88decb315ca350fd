package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPlayerAutoFallsBackToDummy(t *testing.T) {
	ctx := context.Background()
	player := NewPlayerAuto(ctx)
	defer player.Close()
	require.True(t, player.IsDummy())

	stream, err := player.PlayPCM(ctx, 48000, 2, PCMFormatFloat32LE, BufferSize, nil)
	require.NoError(t, err)
	require.NoError(t, stream.Drain())
	require.NoError(t, stream.Close())
}
