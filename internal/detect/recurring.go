package detect

import (
	"math"
	"sort"
	"time"
)

// CandidatePeriods are the billing cadences, in days, a series can snap to.
var CandidatePeriods = []int{7, 14, 28, 30, 31, 365}

// DefaultMinPoints is the fewest charges that can form a series.
const DefaultMinPoints = 3

const day = 24 * time.Hour

// Series describes a detected recurring charge pattern.
type Series struct {
	PeriodDays     int
	AmountMedian   float64
	AmountMAD      float64
	GapMedian      float64
	GapMAD         float64
	Confidence     float64
	NextExpectedAt time.Time
}

// periodTolerance is how far, in days, a gap may stray from the period and
// still count as on schedule.
func periodTolerance(period int) float64 {
	if period == 365 {
		return 10
	}
	return 3
}

// nearestPeriod snaps gap to the closest candidate period. Ties keep the
// earlier candidate.
func nearestPeriod(gap float64) int {
	best := CandidatePeriods[0]
	bestDiff := math.Abs(gap - float64(best))
	for _, p := range CandidatePeriods[1:] {
		if d := math.Abs(gap - float64(p)); d < bestDiff {
			best, bestDiff = p, d
		}
	}
	return best
}

// DetectRecurring looks for a periodic cadence in dates and scores how
// stable the gaps and amounts are. dates and amounts are parallel slices.
// Fewer than minPoints charges never form a series.
func DetectRecurring(dates []time.Time, amounts []float64, minPoints int) (Series, bool) {
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	if len(dates) < minPoints || len(dates) != len(amounts) {
		return Series{}, false
	}

	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, float64(int(sorted[i].Sub(sorted[i-1])/day)))
	}
	if len(gaps) == 0 {
		return Series{}, false
	}

	gapMed := Median(gaps)
	gapMAD := MAD(gaps)
	period := nearestPeriod(gapMed)
	tol := periodTolerance(period)

	within := 0
	for _, g := range gaps {
		if math.Abs(g-float64(period)) <= tol {
			within++
		}
	}
	gapConsistency := float64(within) / float64(len(gaps))

	amtMed := Median(amounts)
	amtMAD := MAD(amounts)
	amtStability := 1.0 / (1.0 + amtMAD/math.Max(1e-6, math.Abs(amtMed)+1e-6))

	conf := clamp01(0.55*gapConsistency + 0.45*amtStability)

	return Series{
		PeriodDays:     period,
		AmountMedian:   amtMed,
		AmountMAD:      amtMAD,
		GapMedian:      gapMed,
		GapMAD:         gapMAD,
		Confidence:     conf,
		NextExpectedAt: sorted[len(sorted)-1].Add(time.Duration(period) * day),
	}, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
