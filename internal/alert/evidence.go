// Package alert turns detector findings into user-facing events and owns the
// typed evidence each event carries.
package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names an event kind. The values are stored and exported verbatim.
type Type string

const (
	TypeNewSubscription   Type = "new_subscription_detected"
	TypePriceChange       Type = "price_change"
	TypePossibleDuplicate Type = "possible_duplicate"
	TypeSpendAnomaly      Type = "spend_anomaly"
	TypeDailySpike        Type = "daily_spike"
	TypeBurst             Type = "burst_small_charges"
)

// Severity ranks an event for display.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
	SeverityHigh Severity = "high"
)

// Evidence is the structured reason behind an event. Each event type has
// exactly one evidence variant.
type Evidence interface {
	EventType() Type
}

// Point is one charge in an evidence history.
type Point struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// ChargeRef identifies a single charge in evidence.
type ChargeRef struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
	TxnID  string    `json:"txn_id"`
}

type NewSubscription struct {
	Merchant   string  `json:"merchant"`
	PeriodDays int     `json:"period_days"`
	Confidence float64 `json:"confidence"`
	LastN      []Point `json:"last_n"`
}

type PriceChange struct {
	BaselineMedian float64 `json:"baseline_median"`
	LastAmount     float64 `json:"last_amount"`
	LastN          []Point `json:"last_n"`
	Rule           string  `json:"rule"`
}

type PossibleDuplicate struct {
	A    ChargeRef `json:"a"`
	B    ChargeRef `json:"b"`
	Rule string    `json:"rule"`
}

type SpendAnomaly struct {
	Kind           string  `json:"type"`
	Merchant       string  `json:"merchant"`
	TxnID          string  `json:"txn_id"`
	Amount         float64 `json:"amount"`
	Z              float64 `json:"z"`
	BaselineMedian float64 `json:"baseline_median"`
	BaselineMAD    float64 `json:"baseline_mad"`
}

type DailySpike struct {
	Kind           string  `json:"type"`
	Day            string  `json:"day"`
	Total          float64 `json:"total"`
	Z              float64 `json:"z"`
	BaselineMedian float64 `json:"baseline_median"`
	BaselineMAD    float64 `json:"baseline_mad"`
}

type Burst struct {
	Kind   string    `json:"type"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Count  int       `json:"count"`
	TxnIDs []string  `json:"txn_ids"`
}

// Unreadable stands in for evidence that could not be decrypted or parsed.
type Unreadable struct {
	Error string `json:"error"`
	Type  Type   `json:"-"`
}

func (NewSubscription) EventType() Type   { return TypeNewSubscription }
func (PriceChange) EventType() Type       { return TypePriceChange }
func (PossibleDuplicate) EventType() Type { return TypePossibleDuplicate }
func (SpendAnomaly) EventType() Type      { return TypeSpendAnomaly }
func (DailySpike) EventType() Type        { return TypeDailySpike }
func (Burst) EventType() Type             { return TypeBurst }
func (u Unreadable) EventType() Type      { return u.Type }

// UnreadableMessage is the placeholder text shown for broken evidence.
const UnreadableMessage = "Could not decrypt/parse evidence"

// EncodeEvidence serializes ev for storage.
func EncodeEvidence(ev Evidence) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode %s evidence: %w", ev.EventType(), err)
	}
	return string(b), nil
}

// DecodeEvidence parses stored evidence into the variant for t.
func DecodeEvidence(t Type, data string) (Evidence, error) {
	var err error
	switch t {
	case TypeNewSubscription:
		var ev NewSubscription
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	case TypePriceChange:
		var ev PriceChange
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	case TypePossibleDuplicate:
		var ev PossibleDuplicate
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	case TypeSpendAnomaly:
		var ev SpendAnomaly
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	case TypeDailySpike:
		var ev DailySpike
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	case TypeBurst:
		var ev Burst
		err = json.Unmarshal([]byte(data), &ev)
		return ev, wrapDecode(t, err)
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

// DecodeOrPlaceholder is DecodeEvidence for display paths: failures yield
// an Unreadable placeholder instead of an error.
func DecodeOrPlaceholder(t Type, data string) Evidence {
	ev, err := DecodeEvidence(t, data)
	if err != nil {
		return Unreadable{Error: UnreadableMessage, Type: t}
	}
	return ev
}

func wrapDecode(t Type, err error) error {
	if err != nil {
		return fmt.Errorf("decode %s evidence: %w", t, err)
	}
	return nil
}
