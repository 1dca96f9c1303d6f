// Package assessment implements the resumable assessment session engine.
package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/perimetra/assess/internal/catalog"
	"github.com/perimetra/assess/internal/domain"
	"github.com/perimetra/assess/internal/store"
)

// Manager owns the session and per-question state machines. All multi-row
// transitions are delegated to the repository's transaction boundary; the
// manager holds no locks of its own.
type Manager struct {
	repo store.Repository
	cat  catalog.Catalog
}

// NewManager creates a session manager over the given repository and catalog.
func NewManager(repo store.Repository, cat catalog.Catalog) *Manager {
	return &Manager{repo: repo, cat: cat}
}

// Create returns the session for a workflow, inserting a fresh one in state
// initialized when none exists. Idempotent: a second call with the same
// workflow ID returns the existing session untouched.
func (m *Manager) Create(ctx context.Context, workflowID, profileID string, meta domain.SessionMetadata) (*domain.AssessmentSession, bool, error) {
	if workflowID == "" {
		return nil, false, domain.MissingField("workflow_id")
	}
	if profileID == "" {
		return nil, false, domain.MissingField("profile_id")
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, false, fmt.Errorf("encode session metadata: %w", err)
	}

	now := time.Now()
	session := &domain.AssessmentSession{
		SessionID:    uuid.NewString(),
		WorkflowID:   workflowID,
		ProfileID:    profileID,
		State:        domain.SessionInitialized,
		Metadata:     string(metaJSON),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}

	canonical, created, err := m.repo.CreateSession(ctx, session)
	if err != nil {
		return nil, false, err
	}
	if created {
		slog.Info("Assessment session created",
			"workflow_id", workflowID, "session_id", canonical.SessionID, "profile_id", profileID)
	}
	return canonical, created, nil
}

// InitializeQuestions bulk-loads the ordered catalog questions into a freshly
// created session. Valid only from state initialized; the repository applies
// the load atomically so a partial catalog is never observable.
func (m *Manager) InitializeQuestions(ctx context.Context, sessionID string, questions []catalog.Question) error {
	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	if session.State != domain.SessionInitialized {
		return domain.InvalidState("initialize questions for", session.State)
	}

	rows := make([]domain.QuestionProgress, 0, len(questions))
	for i, q := range questions {
		rows = append(rows, domain.QuestionProgress{
			SessionID:     sessionID,
			WorkflowID:    session.WorkflowID,
			QuestionID:    q.QuestionID,
			SubcategoryID: q.SubcategoryID,
			Position:      i + 1,
			State:         domain.QuestionNotStarted,
		})
	}

	if err := m.repo.InitializeQuestions(ctx, sessionID, rows); err != nil {
		return err
	}
	slog.Info("Assessment questions loaded",
		"workflow_id", session.WorkflowID, "session_id", sessionID, "count", len(rows))
	return nil
}

// Start creates-or-fetches the session for a workflow, loads its questions
// on first use, marks it in progress, and returns the current summary.
// Completed sessions are returned as-is.
func (m *Manager) Start(ctx context.Context, workflowID, profileID string, meta domain.SessionMetadata) (*domain.ProgressSummary, error) {
	session, _, err := m.Create(ctx, workflowID, profileID, meta)
	if err != nil {
		return nil, err
	}

	if session.State == domain.SessionInitialized {
		var stored domain.SessionMetadata
		if session.Metadata != "" {
			if err := json.Unmarshal([]byte(session.Metadata), &stored); err != nil {
				return nil, fmt.Errorf("decode session metadata: %w", err)
			}
		}
		questions, err := m.cat.OrderedQuestions(ctx, stored.AssessmentType, stored.OrgSize,
			catalog.Filters{Functions: stored.Functions})
		if err != nil {
			return nil, fmt.Errorf("fetch ordered questions: %w", err)
		}
		if err := m.InitializeQuestions(ctx, session.SessionID, questions); err != nil {
			return nil, err
		}
	}

	if session.State.CanResume() {
		if err := m.repo.UpdateSessionState(ctx, workflowID, domain.SessionInProgress, time.Now()); err != nil {
			return nil, err
		}
	}

	return m.ProgressSummary(ctx, workflowID)
}

// Answer records a response for one question. The row update, answered-count
// recompute, and session-state transition commit as one transaction.
// Resubmitting an identical answer is a harmless no-op.
func (m *Manager) Answer(ctx context.Context, sessionID, questionID string, answer domain.Answer) (*domain.ProgressSummary, error) {
	if questionID == "" {
		return nil, domain.MissingField("question_id")
	}
	if answer.ResponseValue == "" {
		return nil, domain.MissingField("response_value")
	}
	if answer.ConfidenceLevel < 0 || answer.ConfidenceLevel > 5 {
		return nil, domain.OutOfRange("confidence_level", answer.ConfidenceLevel)
	}
	if answer.TimeSpentSeconds < 0 {
		return nil, domain.OutOfRange("time_spent_seconds", answer.TimeSpentSeconds)
	}

	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	question, err := m.repo.GetQuestion(ctx, sessionID, questionID)
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, domain.ErrQuestionNotFound
	}

	updated, err := m.repo.RecordAnswer(ctx, sessionID, questionID, answer, time.Now())
	if err != nil {
		return nil, err
	}
	if updated.State == domain.SessionCompleted {
		slog.Info("Assessment completed",
			"workflow_id", updated.WorkflowID, "total_questions", updated.TotalQuestions)
	}

	return m.summaryFor(ctx, updated)
}

// AnswerByWorkflow resolves the workflow's session and records the answer.
func (m *Manager) AnswerByWorkflow(ctx context.Context, workflowID, questionID string, answer domain.Answer) (*domain.ProgressSummary, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return m.Answer(ctx, session.SessionID, questionID, answer)
}

// Resume puts a paused or idle session back in progress and returns where to
// pick up. A completed session is never mutated.
func (m *Manager) Resume(ctx context.Context, workflowID string) (*domain.ProgressSummary, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if session.State == domain.SessionCompleted {
		return nil, domain.ErrAlreadyCompleted
	}

	if err := m.repo.UpdateSessionState(ctx, workflowID, domain.SessionInProgress, time.Now()); err != nil {
		return nil, err
	}
	slog.Info("Assessment session resumed", "workflow_id", workflowID)

	return m.ProgressSummary(ctx, workflowID)
}

// Pause marks a session paused. Pausing a completed session is an illegal
// state transition rather than a silent no-op.
func (m *Manager) Pause(ctx context.Context, workflowID string) (*domain.ProgressSummary, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if session.State.IsTerminal() {
		return nil, domain.InvalidState("pause", session.State)
	}

	if err := m.repo.UpdateSessionState(ctx, workflowID, domain.SessionPaused, time.Now()); err != nil {
		return nil, err
	}

	return m.ProgressSummary(ctx, workflowID)
}

// ProgressSummary returns the derived progress read model for a workflow.
func (m *Manager) ProgressSummary(ctx context.Context, workflowID string) (*domain.ProgressSummary, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return m.summaryFor(ctx, session)
}

func (m *Manager) summaryFor(ctx context.Context, session *domain.AssessmentSession) (*domain.ProgressSummary, error) {
	summary := &domain.ProgressSummary{
		WorkflowID: session.WorkflowID,
		Total:      session.TotalQuestions,
		Answered:   session.QuestionsAnswered,
		Percentage: domain.Percent(session.QuestionsAnswered, session.TotalQuestions),
		State:      session.State,
		CanResume:  session.State.CanResume(),
	}

	if session.State != domain.SessionCompleted {
		next, err := m.repo.NextQuestion(ctx, session.SessionID)
		if err != nil {
			return nil, err
		}
		summary.NextQuestion = next
	}

	return summary, nil
}

// DetailedProgress aggregates per-function and per-category completion for a
// workflow. Function groups key on the first two characters of the
// subcategory ID, category groups on the prefix before the final dash.
func (m *Manager) DetailedProgress(ctx context.Context, workflowID string) (*domain.DetailedProgress, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	questions, err := m.repo.ListQuestions(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	type tally struct{ total, answered int }
	byFunction := make(map[string]*tally)
	byCategory := make(map[string]*tally)

	bump := func(groups map[string]*tally, key string, answered bool) {
		group, ok := groups[key]
		if !ok {
			group = &tally{}
			groups[key] = group
		}
		group.total++
		if answered {
			group.answered++
		}
	}

	for _, q := range questions {
		answered := q.State.IsAnswered()
		bump(byFunction, q.FunctionPrefix(), answered)
		bump(byCategory, q.CategoryPrefix(), answered)
	}

	detailed := &domain.DetailedProgress{
		WorkflowID:  workflowID,
		ByFunction:  make(map[string]domain.GroupProgress, len(byFunction)),
		ByCategory:  make(map[string]domain.GroupProgress, len(byCategory)),
		GeneratedAt: time.Now(),
	}
	for key, group := range byFunction {
		detailed.ByFunction[key] = domain.GroupProgress{
			Total:      group.total,
			Answered:   group.answered,
			Percentage: domain.Percent(group.answered, group.total),
		}
	}
	for key, group := range byCategory {
		detailed.ByCategory[key] = domain.GroupProgress{
			Total:      group.total,
			Answered:   group.answered,
			Percentage: domain.Percent(group.answered, group.total),
		}
	}

	return detailed, nil
}

// ExportResponses returns the answered and validated rows plus completion
// metadata. Read-only: callable at any point in the session lifecycle.
func (m *Manager) ExportResponses(ctx context.Context, workflowID string) (*domain.ResponseExport, error) {
	session, err := m.repo.GetSessionByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	answered, err := m.repo.AnsweredQuestions(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	export := &domain.ResponseExport{
		WorkflowID:        session.WorkflowID,
		ProfileID:         session.ProfileID,
		State:             session.State,
		TotalQuestions:    session.TotalQuestions,
		QuestionsAnswered: session.QuestionsAnswered,
		Complete:          session.State == domain.SessionCompleted,
		Responses:         make([]domain.ExportedResponse, 0, len(answered)),
		ExportedAt:        time.Now(),
	}
	for _, q := range answered {
		export.Responses = append(export.Responses, domain.ExportedResponse{
			QuestionID:       q.QuestionID,
			SubcategoryID:    q.SubcategoryID,
			ResponseValue:    q.ResponseValue,
			ConfidenceLevel:  q.ConfidenceLevel,
			Notes:            q.Notes,
			TimeSpentSeconds: q.TimeSpentSeconds,
			AnsweredAt:       q.AnsweredAt,
		})
	}

	return export, nil
}
