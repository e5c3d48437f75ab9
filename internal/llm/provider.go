// Package llm explains alerts in plain language through a local model server.
package llm

import (
	"context"
	"errors"

	"github.com/jask/subsentry/internal/alert"
)

// Explainer defines methods used by services.
type Explainer interface {
	Explain(ctx context.Context, req ExplainRequest) (ExplainResponse, error)
}

var (
	ErrDisabled       = errors.New("llm: explanations are disabled")
	ErrHostNotAllowed = errors.New("llm: host is not local and allow_network is off")
	ErrEmptyResponse  = errors.New("llm: empty response")
)

// Mode selects how freely the model may interpret the evidence.
type Mode string

const (
	// ModeStrict restates the evidence only.
	ModeStrict Mode = "strict"
	// ModeAnalyst may draw conclusions, labelled as hypotheses.
	ModeAnalyst Mode = "analyst"
)

// ParseMode maps user input onto a mode. Anything but "analyst" is strict.
func ParseMode(s string) Mode {
	if Mode(s) == ModeAnalyst {
		return ModeAnalyst
	}
	return ModeStrict
}

type ExplainRequest struct {
	Title    string         `json:"title"`
	Type     alert.Type     `json:"type"`
	Evidence alert.Evidence `json:"evidence"`
	Mode     Mode           `json:"mode"`
}

type ExplainResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}
