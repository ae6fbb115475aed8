package landcover

import "context"

// WindowSize is the edge of the square sampling window.
const WindowSize = 3

// Sample reads the WindowSize x WindowSize window centred on (row, col).
func Sample(ctx context.Context, r Raster, row, col int) ([]int, error) {
	half := WindowSize / 2
	return r.ReadWindow(ctx, row-half, col-half, WindowSize, WindowSize)
}

// Majority returns the most frequent valid code in values. Ties go to the
// code encountered first. ok is false when no value is valid.
func Majority(values []int) (code int, ok bool) {
	counts := make(map[int]int, len(values))
	best, bestCount := 0, 0
	for _, v := range values {
		if !IsValid(v) {
			continue
		}
		counts[v]++
	}
	for _, v := range values {
		if !IsValid(v) {
			continue
		}
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, bestCount > 0
}
