package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMerchantAnomaliesFlagsOutlier(t *testing.T) {
	base := date(2025, time.January, 1)
	var recs []Record
	for i := 0; i < 9; i++ {
		recs = append(recs, Record{
			TxnID:    fmt.Sprintf("t%d", i),
			PostedAt: base.AddDate(0, 0, i),
			Amount:   -10,
			Merchant: "CAFE",
		})
	}
	recs = append(recs, Record{TxnID: "big", PostedAt: base.AddDate(0, 0, 20), Amount: -250, Merchant: "CAFE"})

	out := MerchantAnomalies(recs, AnomalyOptions{})
	require.Len(t, out, 1)
	require.Equal(t, "big", out[0].TxnID)
	require.Equal(t, "CAFE", out[0].Merchant)
	require.Equal(t, -250.0, out[0].Amount)
	require.Equal(t, 10.0, out[0].BaselineMedian)
	require.Equal(t, 0.0, out[0].BaselineMAD)
	require.Equal(t, 240.0, out[0].Z)
}

func TestMerchantAnomaliesNeedsHistory(t *testing.T) {
	var recs []Record
	for i := 0; i < 7; i++ {
		recs = append(recs, Record{TxnID: fmt.Sprint(i), PostedAt: date(2025, 1, i+1), Amount: 10, Merchant: "A"})
	}
	recs[6].Amount = 9000
	require.Empty(t, MerchantAnomalies(recs, AnomalyOptions{}))
}

func TestMerchantAnomaliesScoresMostRecentFirst(t *testing.T) {
	var recs []Record
	// an old outlier followed by 90 ordinary charges falls outside the scored window
	recs = append(recs, Record{TxnID: "old", PostedAt: date(2020, 1, 1), Amount: 5000, Merchant: "M"})
	for i := 0; i < 90; i++ {
		recs = append(recs, Record{TxnID: fmt.Sprintf("n%02d", i), PostedAt: date(2024, 1, 1).AddDate(0, 0, i), Amount: 20, Merchant: "M"})
	}
	require.Empty(t, MerchantAnomalies(recs, AnomalyOptions{}))
}

func TestDailySpikes(t *testing.T) {
	var recs []Record
	start := date(2025, time.March, 1)
	for i := 0; i < 20; i++ {
		amt := 30.0
		if i%2 == 0 {
			amt = 32
		}
		recs = append(recs, Record{TxnID: fmt.Sprint(i), PostedAt: start.AddDate(0, 0, i), Amount: -amt})
	}
	spike := start.AddDate(0, 0, 20)
	recs = append(recs,
		Record{TxnID: "s1", PostedAt: spike, Amount: -400},
		Record{TxnID: "s2", PostedAt: spike.Add(time.Hour), Amount: -100},
	)

	out := DailySpikes(recs, AnomalyOptions{})
	require.Len(t, out, 1)
	require.Equal(t, spike.Format(time.DateOnly), out[0].Day)
	require.Equal(t, 500.0, out[0].Total)
	require.GreaterOrEqual(t, out[0].Z, 4.0)
}

func TestDailySpikesGroupsByLocalDay(t *testing.T) {
	aest := time.FixedZone("AEST", 10*3600)
	// local midnights are stored as the previous day in UTC
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, aest)
	var recs []Record
	for i := 0; i < 20; i++ {
		amt := 30.0
		if i%2 == 0 {
			amt = 32
		}
		recs = append(recs, Record{TxnID: fmt.Sprint(i), PostedAt: start.AddDate(0, 0, i).UTC(), Amount: -amt})
	}
	spike := start.AddDate(0, 0, 20)
	recs = append(recs,
		Record{TxnID: "s1", PostedAt: spike.UTC(), Amount: -400},
		Record{TxnID: "s2", PostedAt: spike.Add(time.Hour).UTC(), Amount: -100},
	)

	out := DailySpikes(recs, AnomalyOptions{Location: aest})
	require.Len(t, out, 1)
	require.Equal(t, "2025-03-21", out[0].Day)
	require.Equal(t, 500.0, out[0].Total)

	utc := DailySpikes(recs, AnomalyOptions{})
	require.Len(t, utc, 1)
	require.Equal(t, "2025-03-20", utc[0].Day)
}

func TestDailySpikesNeedsFourteenDays(t *testing.T) {
	var recs []Record
	for i := 0; i < 13; i++ {
		recs = append(recs, Record{TxnID: fmt.Sprint(i), PostedAt: date(2025, 1, 1).AddDate(0, 0, i), Amount: 10})
	}
	recs = append(recs, Record{TxnID: "x", PostedAt: date(2025, 1, 1).AddDate(0, 0, 12), Amount: 10000})
	require.Empty(t, DailySpikes(recs, AnomalyOptions{}))
}

func TestSmallChargeBursts(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var recs []Record
	for i := 0; i < 6; i++ {
		recs = append(recs, Record{TxnID: fmt.Sprintf("b%d", i), PostedAt: start.Add(time.Duration(i) * time.Minute), Amount: -1.5})
	}

	out := SmallChargeBursts(recs, AnomalyOptions{})
	require.Len(t, out, 1)
	require.Equal(t, 5, out[0].Count)
	require.Equal(t, start, out[0].Start)
	require.Equal(t, start.Add(4*time.Minute), out[0].End)
	require.Equal(t, []string{"b0", "b1", "b2", "b3", "b4"}, out[0].TxnIDs)
}

func TestSmallChargeBurstsIgnoresSpreadAndLargeCharges(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var recs []Record
	for i := 0; i < 6; i++ {
		recs = append(recs, Record{TxnID: fmt.Sprintf("s%d", i), PostedAt: start.Add(time.Duration(i) * time.Hour), Amount: -2})
		recs = append(recs, Record{TxnID: fmt.Sprintf("l%d", i), PostedAt: start.Add(time.Duration(i)*time.Hour + time.Minute), Amount: -50})
	}
	require.Empty(t, SmallChargeBursts(recs, AnomalyOptions{}))
}
