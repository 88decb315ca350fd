// Package interpolation synthesizes audio for a gap between two known
// fragments, so that a jump of the playback position does not click.
package interpolation

// Interpolator returns gapLen samples that continue 'before' and lead
// into 'after'.
type Interpolator interface {
	Interpolate(before, after []float64, gapLen int) []float64
}

// Linear is a straight line between the edge samples of the fragments.
type Linear struct{}

var _ Interpolator = Linear{}

func (Linear) Interpolate(before, after []float64, gapLen int) []float64 {
	result := make([]float64, gapLen)
	if len(before) == 0 || len(after) == 0 {
		return result
	}
	from, to := before[len(before)-1], after[0]
	for i := range result {
		t := float64(i+1) / float64(gapLen+1)
		result[i] = from + (to-from)*t
	}
	return result
}

// Seam interpolates every channel independently: history and upcoming
// are indexed as [channel][frame].
func Seam(interp Interpolator, history, upcoming [][]float64, gapLen int) [][]float64 {
	result := make([][]float64, len(history))
	for ch := range result {
		var after []float64
		if ch < len(upcoming) {
			after = upcoming[ch]
		}
		result[ch] = interp.Interpolate(history[ch], after, gapLen)
	}
	return result
}
