package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jask/subsentry/internal/alert"
	"github.com/jask/subsentry/internal/llm"
)

// ErrEvidenceUnreadable is returned when an event's evidence cannot be decoded.
var ErrEvidenceUnreadable = errors.New("event evidence is unreadable")

// Explanation is a plain-language account of one event.
type Explanation struct {
	AlertID string   `json:"alert_id"`
	Mode    llm.Mode `json:"mode"`
	Model   string   `json:"model"`
	Text    string   `json:"text"`
}

// ExplainService narrates stored events through an llm.Explainer. A nil
// Explainer means explanations are switched off.
type ExplainService struct {
	Insights  *InsightsService
	Explainer llm.Explainer
	Logger    *slog.Logger
}

// Explain loads event id and asks the model to explain its evidence. Unknown
// ids yield repository.ErrNotFound.
func (s *ExplainService) Explain(ctx context.Context, id string, mode llm.Mode) (Explanation, error) {
	if s.Explainer == nil {
		return Explanation{}, llm.ErrDisabled
	}
	a, err := s.Insights.Alert(ctx, id)
	if err != nil {
		return Explanation{}, err
	}
	if _, ok := a.Evidence.(alert.Unreadable); ok {
		if err := ensureUnlocked(ctx, s.Insights.DB, s.Insights.Codec); err != nil {
			return Explanation{}, err
		}
		return Explanation{}, ErrEvidenceUnreadable
	}

	resp, err := s.Explainer.Explain(ctx, llm.ExplainRequest{
		Title:    a.Title,
		Type:     a.Type,
		Evidence: a.Evidence,
		Mode:     mode,
	})
	if err != nil {
		return Explanation{}, fmt.Errorf("explain %s: %w", id, err)
	}
	loggerOrDefault(s.Logger).Debug("alert explained", "alert_id", id, "model", resp.Model, "mode", mode)
	return Explanation{AlertID: id, Mode: mode, Model: resp.Model, Text: resp.Text}, nil
}
