package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	require.Equal(t, 2.0, Median([]float64{1, 2, 3}))
	require.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	require.Equal(t, 0.0, Median(nil))
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	Median(xs)
	require.Equal(t, []float64{3, 1, 2}, xs)
}

func TestMedianWithinRange(t *testing.T) {
	xs := []float64{9.5, -2, 14, 3.25, 7, 7, 100}
	m := Median(xs)
	require.GreaterOrEqual(t, m, -2.0)
	require.LessOrEqual(t, m, 100.0)
}

func TestMAD(t *testing.T) {
	require.Equal(t, 0.0, MAD([]float64{5, 5, 5}))
	require.Equal(t, 0.0, MAD(nil))
	// deviations from 3 are 2,1,0,1,2 -> median 1
	require.InDelta(t, MADScale, MAD([]float64{1, 2, 3, 4, 5}), 1e-12)
	require.GreaterOrEqual(t, MAD([]float64{-40, 3, 8, 1000}), 0.0)
}

func TestRobustZ(t *testing.T) {
	require.Equal(t, 5.0, RobustZ(15, 10, 0))
	require.Equal(t, 2.0, RobustZ(14, 10, 2))
	require.Equal(t, -1.0, RobustZ(9, 10, 1e-12))
}
