package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/jask/subsentry/internal/detect"
)

// Caps on anomaly-derived events per recompute.
const (
	MaxSpendAnomalies = 200
	MaxDailySpikes    = 200
	MaxBursts         = 50
)

const (
	newSubscriptionHistory = 6
	priceChangeMinPoints   = 5
	priceChangeBaseline    = 6
	priceChangeHistory     = 8
	duplicatePairs         = 10
	duplicateWindow        = 36 * time.Hour

	priceChangeRule = "last amount deviates from rolling median"
	duplicateRule   = "close timestamps + similar amount"
)

// Event is a generated alert ready to be stored. Empty ids mean no link.
type Event struct {
	Type       Type
	Severity   Severity
	Title      string
	MerchantID string
	SeriesID   string
	TxnID      string
	Evidence   Evidence
}

// IdentityKey identifies the finding an event reports independently of the
// event row, so a dismissal can be matched across recomputes.
func (e Event) IdentityKey() string {
	anchor := ""
	switch ev := e.Evidence.(type) {
	case DailySpike:
		anchor = ev.Day
	case Burst:
		anchor = ev.Start.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%s|%s", e.Type, e.MerchantID, e.TxnID, anchor)
}

// Charge is one transaction of a merchant in chronological order.
type Charge struct {
	TxnID    string
	PostedAt time.Time
	Amount   float64
}

// SeriesInput is a detected series together with the charges it came from.
type SeriesInput struct {
	MerchantID   string
	MerchantName string
	SeriesID     string
	PeriodDays   int
	Confidence   float64
	Charges      []Charge
}

// Generator builds events. Now is injected so windows relative to the
// current time are testable.
type Generator struct {
	Now func() time.Time
	// NewSubscriptionWindow is how recent the last charge must be for a
	// series to be announced. Zero means 90 days.
	NewSubscriptionWindow time.Duration
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

// ForSeries runs the per-series checks: new subscription, price change and
// possible duplicates.
func (g Generator) ForSeries(s SeriesInput) []Event {
	var out []Event
	if ev, ok := g.NewSubscription(s); ok {
		out = append(out, ev)
	}
	if ev, ok := PriceChangeEvent(s); ok {
		out = append(out, ev)
	}
	out = append(out, DuplicateEvents(s)...)
	return out
}

// NewSubscription announces a series whose latest charge is recent.
func (g Generator) NewSubscription(s SeriesInput) (Event, bool) {
	tx := s.Charges
	if len(tx) < detect.DefaultMinPoints {
		return Event{}, false
	}
	window := g.NewSubscriptionWindow
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	last := tx[len(tx)-1]
	if g.now().Sub(last.PostedAt) > window {
		return Event{}, false
	}
	return Event{
		Type:       TypeNewSubscription,
		Severity:   SeverityInfo,
		Title:      "Recurring charge detected: " + s.MerchantName,
		MerchantID: s.MerchantID,
		SeriesID:   s.SeriesID,
		TxnID:      last.TxnID,
		Evidence: NewSubscription{
			Merchant:   s.MerchantName,
			PeriodDays: s.PeriodDays,
			Confidence: s.Confidence,
			LastN:      lastPoints(tx, newSubscriptionHistory),
		},
	}, true
}

// PriceChangeEvent compares the latest charge to the median of up to six
// charges before it.
func PriceChangeEvent(s SeriesInput) (Event, bool) {
	tx := s.Charges
	if len(tx) < priceChangeMinPoints {
		return Event{}, false
	}
	prior := tx[:len(tx)-1]
	if len(prior) > priceChangeBaseline {
		prior = prior[len(prior)-priceChangeBaseline:]
	}
	amounts := make([]float64, len(prior))
	for i, c := range prior {
		amounts[i] = c.Amount
	}
	base := detect.Median(amounts)
	last := tx[len(tx)-1]
	if math.Abs(last.Amount-base) <= math.Max(0.10*math.Abs(base), 2.0) {
		return Event{}, false
	}
	return Event{
		Type:       TypePriceChange,
		Severity:   SeverityWarn,
		Title:      fmt.Sprintf("Price change: %s %.2f → %.2f", s.MerchantName, base, last.Amount),
		MerchantID: s.MerchantID,
		SeriesID:   s.SeriesID,
		TxnID:      last.TxnID,
		Evidence: PriceChange{
			BaselineMedian: base,
			LastAmount:     last.Amount,
			LastN:          lastPoints(tx, priceChangeHistory),
			Rule:           priceChangeRule,
		},
	}, true
}

// DuplicateEvents flags consecutive charge pairs among the last ten that are
// close in time and amount. One event per pair, linked to the later charge.
func DuplicateEvents(s SeriesInput) []Event {
	tx := s.Charges
	start := len(tx) - duplicatePairs
	if start < 0 {
		start = 0
	}
	var out []Event
	for i := start; i < len(tx)-1; i++ {
		a, b := tx[i], tx[i+1]
		gap := b.PostedAt.Sub(a.PostedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > duplicateWindow {
			continue
		}
		if math.Abs(b.Amount-a.Amount) > math.Max(0.02*math.Abs(a.Amount), 1.0) {
			continue
		}
		out = append(out, Event{
			Type:       TypePossibleDuplicate,
			Severity:   SeverityWarn,
			Title:      fmt.Sprintf("Possible duplicate: %s (%.2f)", s.MerchantName, a.Amount),
			MerchantID: s.MerchantID,
			SeriesID:   s.SeriesID,
			TxnID:      b.TxnID,
			Evidence: PossibleDuplicate{
				A:    ChargeRef{Date: a.PostedAt, Amount: a.Amount, TxnID: a.TxnID},
				B:    ChargeRef{Date: b.PostedAt, Amount: b.Amount, TxnID: b.TxnID},
				Rule: duplicateRule,
			},
		})
	}
	return out
}

// ForAnomalies converts batch detector findings into events, capping each
// kind.
func ForAnomalies(amounts []detect.AmountAnomaly, spikes []detect.DaySpike, bursts []detect.Burst) []Event {
	var out []Event
	for i, a := range amounts {
		if i == MaxSpendAnomalies {
			break
		}
		out = append(out, Event{
			Type:     TypeSpendAnomaly,
			Severity: SeverityWarn,
			Title:    fmt.Sprintf("Unusual charge: %.2f at %s", a.Amount, a.Merchant),
			TxnID:    a.TxnID,
			Evidence: SpendAnomaly{
				Kind:           "merchant_amount_anomaly",
				Merchant:       a.Merchant,
				TxnID:          a.TxnID,
				Amount:         a.Amount,
				Z:              a.Z,
				BaselineMedian: a.BaselineMedian,
				BaselineMAD:    a.BaselineMAD,
			},
		})
	}
	for i, s := range spikes {
		if i == MaxDailySpikes {
			break
		}
		out = append(out, Event{
			Type:     TypeDailySpike,
			Severity: SeverityInfo,
			Title:    fmt.Sprintf("Daily spend spike: %s total %.2f", s.Day, s.Total),
			Evidence: DailySpike{
				Kind:           string(TypeDailySpike),
				Day:            s.Day,
				Total:          s.Total,
				Z:              s.Z,
				BaselineMedian: s.BaselineMedian,
				BaselineMAD:    s.BaselineMAD,
			},
		})
	}
	for i, b := range bursts {
		if i == MaxBursts {
			break
		}
		out = append(out, Event{
			Type:     TypeBurst,
			Severity: SeverityHigh,
			Title:    fmt.Sprintf("Burst of small charges (%d within window)", b.Count),
			Evidence: Burst{
				Kind:   string(TypeBurst),
				Start:  b.Start,
				End:    b.End,
				Count:  b.Count,
				TxnIDs: b.TxnIDs,
			},
		})
	}
	return out
}

func lastPoints(tx []Charge, n int) []Point {
	if len(tx) > n {
		tx = tx[len(tx)-n:]
	}
	out := make([]Point, len(tx))
	for i, c := range tx {
		out[i] = Point{Date: c.PostedAt, Amount: c.Amount}
	}
	return out
}
