package fourier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq, sampleRate float64, from, count int) []float64 {
	result := make([]float64, count)
	for i := range result {
		result[i] = math.Sin(2 * math.Pi * freq * float64(from+i) / sampleRate)
	}
	return result
}

func maxStep(samples []float64) float64 {
	var result float64
	for i := 1; i < len(samples); i++ {
		result = max(result, math.Abs(samples[i]-samples[i-1]))
	}
	return result
}

func TestSeekSeamHasNoClicks(t *testing.T) {
	const sampleRate = 48000.0
	const gap = 240 // 5ms

	// the playback jumps from ~1s into ~10s of the same tone
	before := sine(440, sampleRate, 48000-2048, 2048)
	after := sine(440, sampleRate, 480000+gap, 2048)

	seam := New().Interpolate(before, after, gap)
	require.Len(t, seam, gap)

	step := maxStep(before)
	joined := append(append(append([]float64{}, before[len(before)-1]), seam...), after[0])
	assert.LessOrEqual(t, math.Abs(joined[1]-joined[0]), step*1.5)
	assert.LessOrEqual(t, math.Abs(joined[len(joined)-1]-joined[len(joined)-2]), step*1.5)
	assert.LessOrEqual(t, maxStep(seam), step*3)
}

func TestShortFragmentsYieldSilence(t *testing.T) {
	seam := New().Interpolate([]float64{1, 1}, []float64{1, 1, 1, 1}, 3)
	assert.Equal(t, []float64{0, 0, 0}, seam)
}

func BenchmarkInterpolate(b *testing.B) {
	before := sine(440, 48000, 0, 2048)
	after := sine(440, 48000, 4096, 2048)
	interp := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = interp.Interpolate(before, after, 480)
	}
}
