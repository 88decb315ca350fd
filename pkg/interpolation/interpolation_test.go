package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	gap := Linear{}.Interpolate([]float64{0, 0, 1}, []float64{5, 0}, 3)
	assert.Equal(t, []float64{2, 3, 4}, gap)

	assert.Equal(t, []float64{0, 0}, Linear{}.Interpolate(nil, []float64{1}, 2))
}

func TestSeam(t *testing.T) {
	history := [][]float64{{0, 1}, {0, -1}}
	upcoming := [][]float64{{1}, {-1}}
	seam := Seam(Linear{}, history, upcoming, 1)
	require.Len(t, seam, 2)
	assert.Equal(t, []float64{1}, seam[0])
	assert.Equal(t, []float64{-1}, seam[1])
}
