package domain

import (
	"strings"
	"time"
)

// QuestionState describes the lifecycle of a single question within a session.
type QuestionState string

const (
	QuestionNotStarted QuestionState = "not_started"
	QuestionInProgress QuestionState = "in_progress"
	QuestionAnswered   QuestionState = "answered"
	QuestionValidated  QuestionState = "validated"
	QuestionSkipped    QuestionState = "skipped"
)

// IsAnswered returns true for states that count toward session completion.
func (s QuestionState) IsAnswered() bool {
	return s == QuestionAnswered || s == QuestionValidated
}

// IsOutstanding returns true for states eligible for next-question selection.
func (s QuestionState) IsOutstanding() bool {
	return s == QuestionNotStarted || s == QuestionInProgress
}

// QuestionProgress is the durable per-question record within a session.
// Position is 1-based and fixes the traversal order used for resume.
type QuestionProgress struct {
	ID               int64         `json:"id"`
	SessionID        string        `json:"session_id"`
	WorkflowID       string        `json:"workflow_id"`
	QuestionID       string        `json:"question_id"`
	SubcategoryID    string        `json:"subcategory_id"`
	Position         int           `json:"position"`
	State            QuestionState `json:"state"`
	ResponseValue    string        `json:"response_value,omitempty"`
	ConfidenceLevel  int           `json:"confidence_level,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	TimeSpentSeconds int           `json:"time_spent_seconds,omitempty"`
	AnsweredAt       *time.Time    `json:"answered_at,omitempty"`
	LastModified     time.Time     `json:"last_modified"`
}

// FunctionPrefix returns the CSF function code for the question's
// subcategory, e.g. "GV" for "GV.OC-01".
func (q *QuestionProgress) FunctionPrefix() string {
	if len(q.SubcategoryID) < 2 {
		return q.SubcategoryID
	}
	return q.SubcategoryID[:2]
}

// CategoryPrefix returns the CSF category code for the question's
// subcategory, e.g. "GV.OC" for "GV.OC-01".
func (q *QuestionProgress) CategoryPrefix() string {
	if idx := strings.LastIndex(q.SubcategoryID, "-"); idx > 0 {
		return q.SubcategoryID[:idx]
	}
	return q.SubcategoryID
}

// Answer holds the caller-supplied fields of an answer submission.
type Answer struct {
	ResponseValue    string `json:"response_value"`
	ConfidenceLevel  int    `json:"confidence_level"`
	Notes            string `json:"notes,omitempty"`
	TimeSpentSeconds int    `json:"time_spent_seconds,omitempty"`
}
