package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/multitrack/pkg/preferences"
)

func TestStorage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "preferences.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Load(ctx, "session-1")
	require.ErrorIs(t, err, preferences.ErrNotFound)
	require.NoError(t, s.Save(ctx, "session-1", []byte(`{"tracks":{}}`)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	value, err := s.Load(ctx, "session-1")
	require.NoError(t, err)
	require.Equal(t, `{"tracks":{}}`, string(value))
}
