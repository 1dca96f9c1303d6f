// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/perimetra/assess/internal/domain"
)

// Repository defines the interface for persisting assessment sessions and
// per-question progress. Every method that mutates more than one field or
// row executes as a single transaction; a mid-sequence failure leaves prior
// state intact.
type Repository interface {
	// CreateSession inserts a session for its workflow ID, or leaves the
	// existing one untouched. Returns the canonical row and whether a new
	// row was inserted.
	CreateSession(ctx context.Context, session *domain.AssessmentSession) (*domain.AssessmentSession, bool, error)

	// GetSessionByWorkflow retrieves a session by workflow ID.
	// Returns (nil, nil) when no session exists.
	GetSessionByWorkflow(ctx context.Context, workflowID string) (*domain.AssessmentSession, error)

	// GetSession retrieves a session by session ID.
	// Returns (nil, nil) when no session exists.
	GetSession(ctx context.Context, sessionID string) (*domain.AssessmentSession, error)

	// InitializeQuestions bulk-inserts one progress row per catalog question,
	// sets total_questions, and transitions the session to questions_loaded.
	// All-or-nothing: a partial catalog is never observable.
	InitializeQuestions(ctx context.Context, sessionID string, questions []domain.QuestionProgress) error

	// GetQuestion retrieves one progress row by session and question ID.
	// Returns (nil, nil) when no row exists.
	GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.QuestionProgress, error)

	// RecordAnswer updates the target question row, recounts answered rows
	// into questions_answered, and transitions the session to completed or
	// in_progress, all in one transaction. Returns the updated session.
	RecordAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer, now time.Time) (*domain.AssessmentSession, error)

	// UpdateSessionState sets the session state and last_activity timestamp.
	UpdateSessionState(ctx context.Context, workflowID string, state domain.SessionState, lastActivity time.Time) error

	// NextQuestion returns the outstanding question with the smallest
	// position, or (nil, nil) when every question is resolved.
	NextQuestion(ctx context.Context, sessionID string) (*domain.NextQuestion, error)

	// ListQuestions returns every progress row for a session ordered by
	// position.
	ListQuestions(ctx context.Context, sessionID string) ([]*domain.QuestionProgress, error)

	// AnsweredQuestions returns rows in answered or validated state ordered
	// by position.
	AnsweredQuestions(ctx context.Context, sessionID string) ([]*domain.QuestionProgress, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
