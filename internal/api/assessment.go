package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/perimetra/assess/internal/assessment"
	"github.com/perimetra/assess/internal/domain"
)

// AssessmentHandler exposes the session manager's boundary contract over HTTP.
type AssessmentHandler struct {
	mgr *assessment.Manager
}

// NewAssessmentHandler creates the facade handler.
func NewAssessmentHandler(mgr *assessment.Manager) *AssessmentHandler {
	return &AssessmentHandler{mgr: mgr}
}

// RegisterRoutes mounts the assessment routes on the router.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/assessments/{workflowID}", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/resume", h.Resume)
		r.Post("/answers", h.Answer)
		r.Post("/pause", h.Pause)
		r.Get("/progress", h.Progress)
		r.Get("/export", h.Export)
	})
}

type startRequest struct {
	ProfileID      string   `json:"profile_id"`
	AssessmentType string   `json:"assessment_type,omitempty"`
	OrgSize        string   `json:"org_size,omitempty"`
	Functions      []string `json:"functions,omitempty"`
}

type answerRequest struct {
	QuestionID       string `json:"question_id"`
	ResponseValue    string `json:"response_value"`
	ConfidenceLevel  int    `json:"confidence_level,omitempty"`
	Notes            string `json:"notes,omitempty"`
	TimeSpentSeconds int    `json:"time_spent_seconds,omitempty"`
}

type sessionResponse struct {
	SessionState domain.SessionState     `json:"session_state"`
	Progress     *domain.ProgressSummary `json:"progress"`
	NextQuestion *domain.NextQuestion    `json:"next_question,omitempty"`
	Message      string                  `json:"message,omitempty"`
}

func toResponse(summary *domain.ProgressSummary, message string) sessionResponse {
	return sessionResponse{
		SessionState: summary.State,
		Progress:     summary,
		NextQuestion: summary.NextQuestion,
		Message:      message,
	}
}

// Start creates or rejoins the workflow's session and marks it in progress.
func (h *AssessmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.mgr.Start(r.Context(), workflowID, req.ProfileID, domain.SessionMetadata{
		AssessmentType: req.AssessmentType,
		OrgSize:        req.OrgSize,
		Functions:      req.Functions,
	})
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, toResponse(summary, ""))
}

// Resume picks the session back up from its persisted position.
func (h *AssessmentHandler) Resume(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	summary, err := h.mgr.Resume(r.Context(), workflowID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, toResponse(summary, "Assessment resumed"))
}

// Answer records one response and returns the updated progress.
func (h *AssessmentHandler) Answer(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.mgr.AnswerByWorkflow(r.Context(), workflowID, req.QuestionID, domain.Answer{
		ResponseValue:    req.ResponseValue,
		ConfidenceLevel:  req.ConfidenceLevel,
		Notes:            req.Notes,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, toResponse(summary, ""))
}

// Pause suspends the session; answered progress stays persisted.
func (h *AssessmentHandler) Pause(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	summary, err := h.mgr.Pause(r.Context(), workflowID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, toResponse(summary, "Assessment paused"))
}

// Progress returns the summary plus per-function/per-category detail.
func (h *AssessmentHandler) Progress(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	summary, err := h.mgr.ProgressSummary(r.Context(), workflowID)
	if err != nil {
		Fail(w, err)
		return
	}
	detailed, err := h.mgr.DetailedProgress(r.Context(), workflowID)
	if err != nil {
		Fail(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"session_state":     summary.State,
		"progress":          summary,
		"detailed_progress": detailed,
	})
}

// Export returns the answered responses plus completion metadata.
func (h *AssessmentHandler) Export(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	export, err := h.mgr.ExportResponses(r.Context(), workflowID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, export)
}
