package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/perimetra/assess/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func newSession(workflowID string) *domain.AssessmentSession {
	now := time.Now()
	return &domain.AssessmentSession{
		SessionID:    uuid.NewString(),
		WorkflowID:   workflowID,
		ProfileID:    "profile-1",
		State:        domain.SessionInitialized,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
	}
}

func threeQuestions(sessionID string) []domain.QuestionProgress {
	return []domain.QuestionProgress{
		{SessionID: sessionID, QuestionID: "gv-oc-01", SubcategoryID: "GV.OC-01", Position: 1},
		{SessionID: sessionID, QuestionID: "gv-oc-02", SubcategoryID: "GV.OC-02", Position: 2},
		{SessionID: sessionID, QuestionID: "id-am-01", SubcategoryID: "ID.AM-01", Position: 3},
	}
}

func TestCreateSession_Idempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	first, created, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !created {
		t.Error("Expected first create to insert")
	}

	second, created, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created {
		t.Error("Expected second create to be a no-op")
	}
	if first.SessionID != second.SessionID {
		t.Errorf("Expected same session id, got %q and %q", first.SessionID, second.SessionID)
	}
}

func TestGetSessionByWorkflow_Missing(t *testing.T) {
	repo := newTestStore(t)

	session, err := repo.GetSessionByWorkflow(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSessionByWorkflow failed: %v", err)
	}
	if session != nil {
		t.Errorf("Expected nil session, got %+v", session)
	}
}

func TestInitializeQuestions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}

	loaded, err := repo.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.State != domain.SessionQuestionsLoaded {
		t.Errorf("Expected questions_loaded, got %q", loaded.State)
	}
	if loaded.TotalQuestions != 3 {
		t.Errorf("Expected total_questions 3, got %d", loaded.TotalQuestions)
	}

	questions, err := repo.ListQuestions(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("ListQuestions failed: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("Expected 3 questions, got %d", len(questions))
	}
	for i, q := range questions {
		if q.Position != i+1 {
			t.Errorf("Expected position %d, got %d", i+1, q.Position)
		}
		if q.State != domain.QuestionNotStarted {
			t.Errorf("Expected not_started, got %q", q.State)
		}
		if q.WorkflowID != "wf-1" {
			t.Errorf("Expected workflow id propagated, got %q", q.WorkflowID)
		}
	}
}

func TestInitializeQuestions_AllOrNothing(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Duplicate question id violates the unique constraint mid-batch; the
	// whole load must roll back, leaving no partial catalog behind.
	bad := threeQuestions(session.SessionID)
	bad[2].QuestionID = bad[0].QuestionID
	if err := repo.InitializeQuestions(ctx, session.SessionID, bad); err == nil {
		t.Fatal("Expected duplicate question id to fail the load")
	}

	questions, err := repo.ListQuestions(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("ListQuestions failed: %v", err)
	}
	if len(questions) != 0 {
		t.Errorf("Expected no question rows after failed load, got %d", len(questions))
	}

	loaded, err := repo.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.State != domain.SessionInitialized {
		t.Errorf("Expected session untouched in initialized, got %q", loaded.State)
	}
	if loaded.TotalQuestions != 0 {
		t.Errorf("Expected total_questions untouched, got %d", loaded.TotalQuestions)
	}
}

func TestInitializeQuestions_MissingSession(t *testing.T) {
	repo := newTestStore(t)

	err := repo.InitializeQuestions(context.Background(), "nope", nil)
	if !errdefs.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestRecordAnswer_TransitionsAndCounts(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}

	answer := domain.Answer{ResponseValue: "Partially Implemented", ConfidenceLevel: 4}
	updated, err := repo.RecordAnswer(ctx, session.SessionID, "gv-oc-01", answer, time.Now())
	if err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if updated.QuestionsAnswered != 1 {
		t.Errorf("Expected 1 answered, got %d", updated.QuestionsAnswered)
	}
	if updated.State != domain.SessionInProgress {
		t.Errorf("Expected in_progress, got %q", updated.State)
	}
	if updated.CurrentQuestionIndex != 2 {
		t.Errorf("Expected current index 2, got %d", updated.CurrentQuestionIndex)
	}

	question, err := repo.GetQuestion(ctx, session.SessionID, "gv-oc-01")
	if err != nil {
		t.Fatalf("GetQuestion failed: %v", err)
	}
	if question.State != domain.QuestionAnswered {
		t.Errorf("Expected answered, got %q", question.State)
	}
	if question.ResponseValue != "Partially Implemented" {
		t.Errorf("Unexpected response value %q", question.ResponseValue)
	}
	if question.ConfidenceLevel != 4 {
		t.Errorf("Expected confidence 4, got %d", question.ConfidenceLevel)
	}
	if question.AnsweredAt == nil {
		t.Error("Expected answered_at to be set")
	}
}

func TestRecordAnswer_UnknownQuestion(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}

	_, err = repo.RecordAnswer(ctx, session.SessionID, "nope", domain.Answer{ResponseValue: "x"}, time.Now())
	if !errdefs.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestNextQuestion_MinimumPosition(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}

	// Answer position 3 out of order; position 1 must still be served next.
	if _, err := repo.RecordAnswer(ctx, session.SessionID, "id-am-01", domain.Answer{ResponseValue: "x"}, time.Now()); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}

	next, err := repo.NextQuestion(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if next == nil || next.Position != 1 {
		t.Fatalf("Expected next question at position 1, got %+v", next)
	}
}

func TestNextQuestion_NoneLeft(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}
	for _, id := range []string{"gv-oc-01", "gv-oc-02", "id-am-01"} {
		if _, err := repo.RecordAnswer(ctx, session.SessionID, id, domain.Answer{ResponseValue: "x"}, time.Now()); err != nil {
			t.Fatalf("RecordAnswer(%s) failed: %v", id, err)
		}
	}

	next, err := repo.NextQuestion(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if next != nil {
		t.Errorf("Expected no next question, got %+v", next)
	}

	loaded, err := repo.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if loaded.State != domain.SessionCompleted {
		t.Errorf("Expected completed, got %q", loaded.State)
	}
}

func TestUpdateSessionState_Missing(t *testing.T) {
	repo := newTestStore(t)

	err := repo.UpdateSessionState(context.Background(), "nope", domain.SessionPaused, time.Now())
	if !errdefs.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestAnsweredQuestions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, _, err := repo.CreateSession(ctx, newSession("wf-1"))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.InitializeQuestions(ctx, session.SessionID, threeQuestions(session.SessionID)); err != nil {
		t.Fatalf("InitializeQuestions failed: %v", err)
	}
	if _, err := repo.RecordAnswer(ctx, session.SessionID, "gv-oc-02", domain.Answer{ResponseValue: "Fully Implemented", Notes: "reviewed"}, time.Now()); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}

	answered, err := repo.AnsweredQuestions(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("AnsweredQuestions failed: %v", err)
	}
	if len(answered) != 1 {
		t.Fatalf("Expected 1 answered row, got %d", len(answered))
	}
	if answered[0].QuestionID != "gv-oc-02" {
		t.Errorf("Expected gv-oc-02, got %q", answered[0].QuestionID)
	}
	if answered[0].Notes != "reviewed" {
		t.Errorf("Expected notes preserved, got %q", answered[0].Notes)
	}
}
