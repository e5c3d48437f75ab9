// Package demo generates a synthetic statement for trying out the detectors.
package demo

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/subsentry/internal/service"
)

// Options controls Rows.
type Options struct {
	Months int
	End    time.Time
	Seed   uint64
}

const account = "Sample Checking"

type subscription struct {
	desc   string
	amount float64
	day    int
}

var subscriptions = []subscription{
	{"NETFLIX.COM", 15.99, 5},
	{"PAYPAL *SPOTIFY P0123", 11.99, 12},
	{"ICLOUD STORAGE", 2.99, 20},
}

var everyday = []string{"WOOLWORTHS 1234", "UBER EATS* SUSHI", "SHELL COLES EXPRESS", "CAFE NERO"}

// Rows returns a ledger covering opts.Months months up to opts.End: monthly
// subscriptions (the first gets a price rise in the last month and the
// second a double charge), everyday spending, one burst of small charges and
// one unusually large day. The same Options always yield the same rows.
func Rows(opts Options) []service.Row {
	if opts.Months <= 0 {
		opts.Months = 6
	}
	if opts.End.IsZero() {
		opts.End = time.Now().UTC()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed))
	end := time.Date(opts.End.Year(), opts.End.Month(), opts.End.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -opts.Months, 0)

	var rows []service.Row
	add := func(at time.Time, desc string, amount float64) {
		rows = append(rows, service.Row{
			PostedAt:       at,
			Amount:         decimal.NewFromFloat(-amount).Round(2),
			DescriptionRaw: desc,
			AccountID:      account,
		})
	}

	for m := 0; m < opts.Months; m++ {
		month := start.AddDate(0, m, 0)
		for i, s := range subscriptions {
			at := time.Date(month.Year(), month.Month(), s.day, 0, 0, 0, 0, time.UTC)
			if at.After(end) {
				continue
			}
			amount := s.amount
			if i == 0 && m == opts.Months-1 {
				amount += 4
			}
			add(at, s.desc, amount)
			if i == 1 && m == opts.Months/2 {
				add(at.Add(3*time.Hour), s.desc, amount)
			}
		}
	}

	for d := start; d.Before(end); d = d.AddDate(0, 0, 1+rng.IntN(3)) {
		desc := everyday[rng.IntN(len(everyday))]
		add(d.Add(time.Duration(8+rng.IntN(12))*time.Hour), desc, 8+float64(rng.IntN(9000))/100)
	}

	burst := end.AddDate(0, 0, -10).Add(21 * time.Hour)
	for i := 0; i < 6; i++ {
		add(burst.Add(time.Duration(i*4)*time.Minute), "APPLE.COM/BILL", 0.99+float64(rng.IntN(300))/100)
	}

	big := end.AddDate(0, 0, -3).Add(14 * time.Hour)
	add(big, "JB HI-FI ONLINE", 2499)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].PostedAt.Before(rows[j].PostedAt) })
	return rows
}
