// Package detect holds the pure detection algorithms: robust statistics,
// merchant text normalization, recurring-series detection and the batch
// anomaly detectors. Nothing here touches storage.
package detect

import (
	"math"
	"sort"
)

// MADScale makes the median absolute deviation comparable to a standard
// deviation under normality.
const MADScale = 1.4826

// Median returns the median of xs, or 0 for an empty slice. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// MAD returns the scaled median absolute deviation of xs, or 0 for an empty slice.
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	med := Median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return Median(dev) * MADScale
}

// RobustZ scores x against a median/MAD baseline. A baseline without
// dispersion divides by 1 instead of 0.
func RobustZ(x, median, mad float64) float64 {
	denom := mad
	if denom <= 1e-9 {
		denom = 1.0
	}
	return (x - median) / denom
}
