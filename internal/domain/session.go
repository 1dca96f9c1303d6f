// Package domain contains core domain types for the assessment service.
package domain

import (
	"time"
)

// SessionState describes the lifecycle of an assessment session.
type SessionState string

const (
	SessionInitialized     SessionState = "initialized"
	SessionQuestionsLoaded SessionState = "questions_loaded"
	SessionInProgress      SessionState = "in_progress"
	SessionPaused          SessionState = "paused"
	SessionCompleted       SessionState = "completed"
	SessionAbandoned       SessionState = "abandoned"
)

// IsTerminal returns true for states that accept no further answers.
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// CanResume returns true if the session may transition back to in_progress.
// Only completion closes the door on resuming; an abandoned session can be
// picked back up.
func (s SessionState) CanResume() bool {
	return s != SessionCompleted
}

// AssessmentSession is the durable record of one assessment workflow.
// Exactly one session exists per workflow ID.
type AssessmentSession struct {
	SessionID            string       `json:"session_id"`
	WorkflowID           string       `json:"workflow_id"`
	ProfileID            string       `json:"profile_id"`
	State                SessionState `json:"state"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	TotalQuestions       int          `json:"total_questions"`
	QuestionsAnswered    int          `json:"questions_answered"`
	Metadata             string       `json:"-"` // opaque JSON blob set at creation
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	LastActivity         time.Time    `json:"last_activity"`
}

// SessionMetadata is the creation-time configuration stored in the
// session's opaque metadata blob.
type SessionMetadata struct {
	AssessmentType string   `json:"assessment_type,omitempty"`
	OrgSize        string   `json:"org_size,omitempty"`
	Functions      []string `json:"functions,omitempty"`
}
