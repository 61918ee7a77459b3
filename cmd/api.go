package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forensicvalue/forensic-cli/internal/model"
	"github.com/forensicvalue/forensic-cli/internal/store"
	"github.com/forensicvalue/forensic-cli/internal/workflow"
)

type apiRouter struct {
	store store.Store
	cp    *workflow.Checkpointer
}

// newRouter builds the HTTP API over a store. Factored out of serve so
// tests can drive it with httptest.
func newRouter(st store.Store, allowedOrigins []string) http.Handler {
	a := &apiRouter{store: st, cp: workflow.NewCheckpointer(st)}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", a.wrap(a.handleCreateAnalysis))
		rt.Get("/analyses", a.wrap(a.handleListAnalyses))
		rt.Get("/analyses/{id}", a.wrap(a.handleGetAnalysis))
		rt.Patch("/analyses/{id}/status", a.wrap(a.handleTransition))
		rt.Delete("/analyses/{id}", a.wrap(a.handleDeleteAnalysis))

		rt.Post("/analyses/{id}/findings", a.wrap(a.handleCreateFinding))
		rt.Get("/analyses/{id}/findings", a.wrap(a.handleListFindings))
		rt.Post("/findings/{id}/validation", a.wrap(a.handleValidateFinding))

		rt.Post("/feedback", a.wrap(a.handleCreateFeedback))
		rt.Get("/feedback", a.wrap(a.handleListFeedback))

		rt.Get("/analyses/{id}/session", a.wrap(a.handleGetSession))
		rt.Put("/analyses/{id}/session", a.wrap(a.handleCheckpointSession))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap adapts error-returning handlers, mapping store errors onto
// status codes by their message shape.
func (a *apiRouter) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		msg := err.Error()
		status := http.StatusInternalServerError
		switch {
		case strings.Contains(msg, "not found") || strings.Contains(msg, "no rows"):
			status = http.StatusNotFound
		case strings.Contains(msg, "illegal transition") || strings.Contains(msg, "changed concurrently"):
			status = http.StatusConflict
		case strings.Contains(msg, "invalid") || strings.Contains(msg, "required") || strings.Contains(msg, "decode"):
			status = http.StatusBadRequest
		}

		if status == http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("path", req.URL.Path),
				zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrap(err, "decode request body")
	}
	return nil
}

// -- analyses --

func (a *apiRouter) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) error {
	var in model.NewAnalysis
	if err := decodeBody(r, &in); err != nil {
		return err
	}

	created, err := a.store.CreateAnalysis(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (a *apiRouter) handleListAnalyses(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	analyses, err := a.store.ListAnalyses(r.Context(), store.AnalysisFilter{
		Ticker: q.Get("ticker"),
		Status: model.AnalysisStatus(q.Get("status")),
		UserID: q.Get("user_id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	if analyses == nil {
		analyses = []model.Analysis{}
	}
	writeJSON(w, http.StatusOK, analyses)
	return nil
}

func (a *apiRouter) handleGetAnalysis(w http.ResponseWriter, r *http.Request) error {
	got, err := a.store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, got)
	return nil
}

func (a *apiRouter) handleTransition(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Status        model.AnalysisStatus `json:"status"`
		RiskScore     *float64             `json:"risk_score,omitempty"`
		FindingsCount *int                 `json:"findings_count,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if !body.Status.Valid() {
		return eris.Errorf("invalid status %q", body.Status)
	}

	id := chi.URLParam(r, "id")
	if err := a.store.TransitionAnalysis(r.Context(), id, body.Status, store.TransitionUpdate{
		RiskScore:     body.RiskScore,
		FindingsCount: body.FindingsCount,
	}); err != nil {
		return err
	}

	got, err := a.store.GetAnalysis(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, got)
	return nil
}

func (a *apiRouter) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) error {
	if err := a.store.DeleteAnalysis(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// -- findings --

func (a *apiRouter) handleCreateFinding(w http.ResponseWriter, r *http.Request) error {
	var in model.NewFinding
	if err := decodeBody(r, &in); err != nil {
		return err
	}
	in.AnalysisID = chi.URLParam(r, "id")

	created, err := a.store.CreateFinding(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (a *apiRouter) handleListFindings(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	findings, err := a.store.ListFindings(r.Context(), store.FindingFilter{
		AnalysisID: chi.URLParam(r, "id"),
		Agent:      model.AgentName(q.Get("agent")),
		Severity:   model.Severity(q.Get("severity")),
		Validation: model.Validation(q.Get("validation")),
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	if findings == nil {
		findings = []model.Finding{}
	}
	writeJSON(w, http.StatusOK, findings)
	return nil
}

func (a *apiRouter) handleValidateFinding(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Validation         model.Validation `json:"validation"`
		AdjustedConfidence *float64         `json:"adjusted_confidence,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		return err
	}

	id := chi.URLParam(r, "id")
	if err := a.store.ValidateFinding(r.Context(), id, body.Validation, body.AdjustedConfidence); err != nil {
		return err
	}

	got, err := a.store.GetFinding(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, got)
	return nil
}

// -- feedback --

func (a *apiRouter) handleCreateFeedback(w http.ResponseWriter, r *http.Request) error {
	var in model.NewFeedback
	if err := decodeBody(r, &in); err != nil {
		return err
	}

	created, err := a.store.CreateFeedback(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, created)
	return nil
}

func (a *apiRouter) handleListFeedback(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	filter := store.FeedbackFilter{
		FindingID: q.Get("finding_id"),
		Ticker:    q.Get("ticker"),
		Sector:    q.Get("sector"),
		Type:      model.FeedbackType(q.Get("type")),
		Limit:     limit,
	}
	if v := q.Get("apply_to_future"); v != "" {
		reuse, err := strconv.ParseBool(v)
		if err != nil {
			return eris.New("invalid apply_to_future value")
		}
		filter.ApplyToFuture = &reuse
	}

	rows, err := a.store.ListFeedback(r.Context(), filter)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []model.Feedback{}
	}
	writeJSON(w, http.StatusOK, rows)
	return nil
}

// -- sessions --

func (a *apiRouter) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := a.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if sess == nil {
		return eris.Errorf("session not found for analysis %s", chi.URLParam(r, "id"))
	}
	writeJSON(w, http.StatusOK, sess)
	return nil
}

// handleCheckpointSession applies a partial checkpoint to the latest
// session of an analysis, opening one if none exists yet.
func (a *apiRouter) handleCheckpointSession(w http.ResponseWriter, r *http.Request) error {
	var upd store.SessionUpdate
	if err := decodeBody(r, &upd); err != nil {
		return err
	}

	analysisID := chi.URLParam(r, "id")
	sess, err := a.store.GetSession(r.Context(), analysisID)
	if err != nil {
		return err
	}
	if sess == nil {
		sess, err = a.cp.Start(r.Context(), analysisID, 0)
		if err != nil {
			return err
		}
	}

	if err := a.store.CheckpointSession(r.Context(), sess.ID, upd); err != nil {
		return err
	}

	sess, err = a.store.GetSession(r.Context(), analysisID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess)
	return nil
}
