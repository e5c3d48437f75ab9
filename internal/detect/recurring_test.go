package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestDetectRecurringMonthly(t *testing.T) {
	dates := []time.Time{
		date(2025, time.January, 15),
		date(2025, time.February, 15),
		date(2025, time.March, 15),
		date(2025, time.April, 15),
	}
	amounts := []float64{-15.99, -15.99, -15.99, -15.99}

	s, ok := DetectRecurring(dates, amounts, 3)
	require.True(t, ok)
	require.Contains(t, []int{30, 31}, s.PeriodDays)
	require.Greater(t, s.Confidence, 0.8)
	require.Equal(t, -15.99, s.AmountMedian)
	require.Equal(t, 0.0, s.AmountMAD)
	require.Equal(t, date(2025, time.April, 15).AddDate(0, 0, s.PeriodDays), s.NextExpectedAt)
}

func TestDetectRecurringUnsortedInput(t *testing.T) {
	dates := []time.Time{
		date(2025, time.March, 4),
		date(2025, time.January, 1),
		date(2025, time.February, 1),
	}
	s, ok := DetectRecurring(dates, []float64{10, 10, 10}, 3)
	require.True(t, ok)
	require.Equal(t, 31, s.PeriodDays)
	require.Equal(t, date(2025, time.April, 4), s.NextExpectedAt)
}

func TestDetectRecurringWeekly(t *testing.T) {
	start := date(2025, time.May, 5)
	var dates []time.Time
	var amounts []float64
	for i := 0; i < 6; i++ {
		dates = append(dates, start.AddDate(0, 0, 7*i))
		amounts = append(amounts, 4.5)
	}
	s, ok := DetectRecurring(dates, amounts, 3)
	require.True(t, ok)
	require.Equal(t, 7, s.PeriodDays)
	require.InDelta(t, 1.0, s.Confidence, 1e-9)
}

func TestDetectRecurringTooFewPoints(t *testing.T) {
	_, ok := DetectRecurring([]time.Time{date(2025, 1, 1), date(2025, 2, 1)}, []float64{1, 1}, 3)
	require.False(t, ok)
	_, ok = DetectRecurring(nil, nil, 3)
	require.False(t, ok)
}

func TestDetectRecurringIrregularGapsLowerConfidence(t *testing.T) {
	dates := []time.Time{
		date(2025, time.January, 1),
		date(2025, time.January, 3),
		date(2025, time.February, 20),
		date(2025, time.March, 1),
		date(2025, time.June, 1),
	}
	amounts := []float64{3, 80, 12, 45, 7}
	s, ok := DetectRecurring(dates, amounts, 3)
	require.True(t, ok)
	require.GreaterOrEqual(t, s.Confidence, 0.0)
	require.LessOrEqual(t, s.Confidence, 1.0)
	require.Less(t, s.Confidence, 0.8)
	require.Contains(t, CandidatePeriods, s.PeriodDays)
}

func TestNearestPeriodTies(t *testing.T) {
	// 29 is equidistant from 28 and 30; the earlier candidate wins.
	require.Equal(t, 28, nearestPeriod(29))
	require.Equal(t, 30, nearestPeriod(30.4))
	require.Equal(t, 365, nearestPeriod(300))
}
