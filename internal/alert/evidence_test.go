package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvidenceRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := PossibleDuplicate{
		A:    ChargeRef{Date: at, Amount: -12.5, TxnID: "a"},
		B:    ChargeRef{Date: at.Add(time.Hour), Amount: -12.5, TxnID: "b"},
		Rule: duplicateRule,
	}
	data, err := EncodeEvidence(ev)
	require.NoError(t, err)
	require.Contains(t, data, `"txn_id":"a"`)

	got, err := DecodeEvidence(TypePossibleDuplicate, data)
	require.NoError(t, err)
	require.Equal(t, ev, got)
}

func TestEvidenceKeys(t *testing.T) {
	data, err := EncodeEvidence(SpendAnomaly{Kind: "merchant_amount_anomaly", Merchant: "X", TxnID: "t", Amount: 5, Z: 4.2})
	require.NoError(t, err)
	for _, key := range []string{"type", "merchant", "txn_id", "amount", "z", "baseline_median", "baseline_mad"} {
		require.Contains(t, data, `"`+key+`"`)
	}
}

func TestDecodeOrPlaceholder(t *testing.T) {
	ev := DecodeOrPlaceholder(TypeBurst, "enc:not-json")
	u, ok := ev.(Unreadable)
	require.True(t, ok)
	require.Equal(t, UnreadableMessage, u.Error)
	require.Equal(t, TypeBurst, u.EventType())

	data, err := EncodeEvidence(u)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"Could not decrypt/parse evidence"}`, data)

	_, err = DecodeEvidence("mystery", "{}")
	require.Error(t, err)
}
