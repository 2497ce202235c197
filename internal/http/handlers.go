package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line has already been sent by then.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "error", err, "url", r.URL.Path)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the engine's error taxonomy to HTTP statuses: validation
// failures to 422, absent entities to 404, identity collisions to 409,
// everything else to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "error", err, "status", status, "url", r.URL.Path)
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func monthFromPath(r *http.Request) (core.YearMonth, error) {
	return core.ParseYearMonth(r.PathValue("month"))
}

func (s *Server) handleGenerateMonth(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.generator.GenerateMonth(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.summaries.MonthSummary(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, struct {
		Record  *core.MonthRecord `json:"record"`
		Summary services.Summary  `json:"summary"`
	}{Record: rec, Summary: summary})
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.store.LoadMonth(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) handleLeftover(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.summaries.MonthSummary(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Month    core.YearMonth `json:"month"`
		Leftover int64          `json:"leftover"`
	}{Month: summary.Month, Leftover: summary.Leftover})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.summaries.MonthSummary(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

type paymentRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (s *Server) handleProposePayment(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	proposal, err := s.payoff.ProposeSync(r.Context(), month, r.PathValue("id"), req.AmountCents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, proposal)
}

func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	src, warning, err := s.payoff.ApplySync(r.Context(), month, r.PathValue("id"), req.AmountCents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Source  *core.PaymentSource `json:"payment_source"`
		Warning string              `json:"warning,omitempty"`
	}{Source: src, Warning: warning})
}

func (s *Server) handleSkipPayment(w http.ResponseWriter, r *http.Request) {
	month, err := monthFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.payoff.SkipSync(r.Context(), month, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Skipped bool `json:"skipped"`
	}{Skipped: true})
}

func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req services.MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := s.mutator.Mutate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		Result  services.EntityResult `json:"result"`
		Summary *services.Summary     `json:"summary,omitempty"`
	}{Result: res}

	// Month-scoped mutations move the leftover; return the fresh figure so
	// clients never display a stale one.
	if req.Month != nil {
		summary, err := s.summaries.MonthSummary(r.Context(), *req.Month)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Summary = &summary
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	entry, err := s.mutator.Undo(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrNothingToUndo) {
			// Empty log is informational, not an error.
			writeJSON(w, r, http.StatusOK, struct {
				NothingToUndo bool `json:"nothing_to_undo"`
			}{NothingToUndo: true})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, struct {
		Undone *core.UndoEntry `json:"undone"`
	}{Undone: entry})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	kinds := []core.TemplateKind{core.KindBill, core.KindIncome}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := core.TemplateKind(v)
		if err := kind.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		kinds = []core.TemplateKind{kind}
	}

	var templates []core.Template
	for _, kind := range kinds {
		batch, err := s.store.LoadTemplates(r.Context(), kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		templates = append(templates, batch...)
	}
	writeJSON(w, r, http.StatusOK, templates)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.LoadPaymentSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sources)
}
