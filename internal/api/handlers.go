package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jask/subsentry/internal/database/repository"
	"github.com/jask/subsentry/internal/llm"
	"github.com/jask/subsentry/internal/service"
)

const defaultAlertLimit = 200

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type dismissRequest struct {
	Dismissed *bool `json:"dismissed"`
}

type recomputeResponse struct {
	Updated int `json:"merchants_updated"`
	Created int `json:"merchants_created"`
	Series  int `json:"series"`
	Events  int `json:"events"`
}

type statementResponse struct {
	ID               string     `json:"id"`
	ImportedAt       time.Time  `json:"imported_at"`
	OriginalFilename string     `json:"filename"`
	RowsCount        int        `json:"rows"`
	Label            *string    `json:"label"`
	PeriodStart      *time.Time `json:"period_start"`
	PeriodEnd        *time.Time `json:"period_end"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err APIError) {
	writeJSON(w, status, err)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

// listSubscriptions handles GET /api/subscriptions.
func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.insights.Subscriptions(r.Context())
	if err != nil {
		s.logger.Error("list subscriptions", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	if subs == nil {
		subs = []service.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// listAlerts handles GET /api/alerts?include_dismissed=&limit=.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultAlertLimit)
	alerts, err := s.insights.Alerts(r.Context(), parseBoolParam(r, "include_dismissed", false), limit)
	if err != nil {
		s.logger.Error("list alerts", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// getAlert handles GET /api/alerts/{id}.
func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.insights.Alert(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, NotFoundError("alert"))
		return
	}
	if err != nil {
		s.logger.Error("get alert", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// explainAlert handles GET /api/alerts/{id}/explain?mode=strict|analyst.
func (s *Server) explainAlert(w http.ResponseWriter, r *http.Request) {
	mode := llm.ParseMode(r.URL.Query().Get("mode"))
	out, err := s.explain.Explain(r.Context(), chi.URLParam(r, "id"), mode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, NotFoundError("alert"))
	case errors.Is(err, service.ErrLocked):
		writeError(w, http.StatusConflict, LockedError())
	case errors.Is(err, service.ErrEvidenceUnreadable):
		writeError(w, http.StatusUnprocessableEntity, UnreadableError())
	case errors.Is(err, llm.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, LLMDisabledError())
	default:
		s.logger.Warn("explain alert", "err", err)
		writeError(w, http.StatusBadGateway, UpstreamError())
	}
}

// dismissAlert handles POST /api/alerts/{id}/dismiss. An empty body dismisses.
func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	dismissed := true
	if r.ContentLength != 0 {
		var req dismissRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, BadRequestError("invalid JSON body"))
			return
		}
		if req.Dismissed != nil {
			dismissed = *req.Dismissed
		}
	}
	id := chi.URLParam(r, "id")
	err := s.insights.Dismiss(r.Context(), id, dismissed)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, NotFoundError("alert"))
		return
	}
	if err != nil {
		s.logger.Error("dismiss alert", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "dismissed": dismissed})
}

// runRecompute handles POST /api/recompute.
func (s *Server) runRecompute(w http.ResponseWriter, r *http.Request) {
	res, err := s.recompute.Run(r.Context())
	if errors.Is(err, service.ErrLocked) {
		writeError(w, http.StatusConflict, LockedError())
		return
	}
	if err != nil {
		s.logger.Error("recompute", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{
		Updated: res.Resolution.Updated,
		Created: res.Resolution.Created,
		Series:  res.Series,
		Events:  res.Events,
	})
}

// listStatements handles GET /api/statements.
func (s *Server) listStatements(w http.ResponseWriter, r *http.Request) {
	files, err := s.statements.List(r.Context())
	if err != nil {
		s.logger.Error("list statements", "err", err)
		writeError(w, http.StatusInternalServerError, InternalError())
		return
	}
	out := make([]statementResponse, 0, len(files))
	for _, f := range files {
		out = append(out, statementResponse{
			ID:               f.ID,
			ImportedAt:       f.ImportedAt,
			OriginalFilename: f.OriginalFilename,
			RowsCount:        f.RowsCount,
			Label:            f.StatementLabel,
			PeriodStart:      f.PeriodStart,
			PeriodEnd:        f.PeriodEnd,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
