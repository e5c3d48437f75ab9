package detect

import (
	"math"
	"sort"
	"time"
)

// Record is one transaction as seen by the batch anomaly detectors.
type Record struct {
	TxnID    string
	PostedAt time.Time
	Amount   float64
	Merchant string
}

// AnomalyOptions tunes the batch detectors. Zero fields take the defaults.
type AnomalyOptions struct {
	AmountZ         float64
	SpikeZ          float64
	SpikeWindowDays int
	BurstAmountMax  float64
	BurstWindow     time.Duration
	BurstCountMin   int
	// Location decides which calendar day a charge falls on. Nil means UTC.
	Location *time.Location
}

// DefaultAnomalyOptions returns the stock thresholds.
func DefaultAnomalyOptions() AnomalyOptions {
	return AnomalyOptions{
		AmountZ:         4.0,
		SpikeZ:          4.0,
		SpikeWindowDays: 60,
		BurstAmountMax:  5.0,
		BurstWindow:     30 * time.Minute,
		BurstCountMin:   5,
	}
}

func (o AnomalyOptions) withDefaults() AnomalyOptions {
	d := DefaultAnomalyOptions()
	if o.AmountZ <= 0 {
		o.AmountZ = d.AmountZ
	}
	if o.SpikeZ <= 0 {
		o.SpikeZ = d.SpikeZ
	}
	if o.SpikeWindowDays <= 0 {
		o.SpikeWindowDays = d.SpikeWindowDays
	}
	if o.BurstAmountMax <= 0 {
		o.BurstAmountMax = d.BurstAmountMax
	}
	if o.BurstWindow <= 0 {
		o.BurstWindow = d.BurstWindow
	}
	if o.BurstCountMin <= 0 {
		o.BurstCountMin = d.BurstCountMin
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

const (
	// merchantMinHistory is the fewest charges a merchant needs before its
	// amounts are scored.
	merchantMinHistory = 8
	// merchantScoreCap bounds how many charges per merchant are scored.
	merchantScoreCap = 80
	// spikeMinDays is the fewest distinct spending days for spike detection.
	spikeMinDays = 14
	// spikeWarmup is the number of leading days used only as history.
	spikeWarmup = 7
)

// AmountAnomaly is a charge whose size is far from its merchant's norm.
type AmountAnomaly struct {
	Merchant       string
	TxnID          string
	Amount         float64
	Z              float64
	BaselineMedian float64
	BaselineMAD    float64
}

// MerchantAnomalies flags charges whose absolute amount has a robust z-score
// of at least opts.AmountZ against their merchant's baseline. Merchants are
// visited in name order and the most recent charges are scored first.
func MerchantAnomalies(records []Record, opts AnomalyOptions) []AmountAnomaly {
	opts = opts.withDefaults()

	byMerchant := make(map[string][]Record)
	for _, r := range records {
		byMerchant[r.Merchant] = append(byMerchant[r.Merchant], r)
	}
	names := make([]string, 0, len(byMerchant))
	for name := range byMerchant {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []AmountAnomaly
	for _, name := range names {
		rows := byMerchant[name]
		if len(rows) < merchantMinHistory {
			continue
		}
		amounts := make([]float64, len(rows))
		for i, r := range rows {
			amounts[i] = math.Abs(r.Amount)
		}
		med := Median(amounts)
		mad := MAD(amounts)

		recent := append([]Record(nil), rows...)
		sort.SliceStable(recent, func(i, j int) bool {
			if !recent[i].PostedAt.Equal(recent[j].PostedAt) {
				return recent[i].PostedAt.After(recent[j].PostedAt)
			}
			return recent[i].TxnID < recent[j].TxnID
		})
		if len(recent) > merchantScoreCap {
			recent = recent[:merchantScoreCap]
		}
		for _, r := range recent {
			z := RobustZ(math.Abs(r.Amount), med, mad)
			if math.Abs(z) >= opts.AmountZ {
				out = append(out, AmountAnomaly{
					Merchant:       name,
					TxnID:          r.TxnID,
					Amount:         r.Amount,
					Z:              z,
					BaselineMedian: med,
					BaselineMAD:    mad,
				})
			}
		}
	}
	return out
}

// DaySpike is a day whose total spend is far above the preceding days.
type DaySpike struct {
	Day            string
	Total          float64
	Z              float64
	BaselineMedian float64
	BaselineMAD    float64
}

// DailySpikes sums absolute amounts per calendar day in opts.Location and
// flags days whose total has a robust z-score of at least opts.SpikeZ against
// the preceding opts.SpikeWindowDays spending days. Days without charges are
// not counted.
func DailySpikes(records []Record, opts AnomalyOptions) []DaySpike {
	opts = opts.withDefaults()

	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.PostedAt.In(opts.Location).Format(time.DateOnly)] += math.Abs(r.Amount)
	}
	if len(totals) < spikeMinDays {
		return nil
	}
	days := make([]string, 0, len(totals))
	for d := range totals {
		days = append(days, d)
	}
	sort.Strings(days)
	values := make([]float64, len(days))
	for i, d := range days {
		values[i] = totals[d]
	}

	var out []DaySpike
	for i := spikeWarmup; i < len(days); i++ {
		start := i - opts.SpikeWindowDays
		if start < 0 {
			start = 0
		}
		hist := values[start:i]
		med := Median(hist)
		mad := MAD(hist)
		z := RobustZ(values[i], med, mad)
		if z >= opts.SpikeZ {
			out = append(out, DaySpike{
				Day:            days[i],
				Total:          values[i],
				Z:              z,
				BaselineMedian: med,
				BaselineMAD:    mad,
			})
		}
	}
	return out
}

// Burst is a cluster of small charges inside a short window.
type Burst struct {
	Start  time.Time
	End    time.Time
	Count  int
	TxnIDs []string
}

// SmallChargeBursts slides a time window over the charges in chronological
// order and reports each window holding at least opts.BurstCountMin charges
// of absolute amount at most opts.BurstAmountMax. A reported window is not
// reused by the next one.
func SmallChargeBursts(records []Record, opts AnomalyOptions) []Burst {
	opts = opts.withDefaults()

	tx := append([]Record(nil), records...)
	sort.SliceStable(tx, func(i, j int) bool { return tx[i].PostedAt.Before(tx[j].PostedAt) })

	var out []Burst
	j := 0
	for i := range tx {
		for tx[i].PostedAt.Sub(tx[j].PostedAt) > opts.BurstWindow {
			j++
			if j >= i {
				break
			}
		}
		window := tx[j : i+1]
		var ids []string
		for _, t := range window {
			if math.Abs(t.Amount) <= opts.BurstAmountMax {
				ids = append(ids, t.TxnID)
			}
		}
		if len(ids) >= opts.BurstCountMin {
			out = append(out, Burst{
				Start:  window[0].PostedAt,
				End:    window[len(window)-1].PostedAt,
				Count:  len(ids),
				TxnIDs: ids,
			})
			j = i + 1
		}
	}
	return out
}
