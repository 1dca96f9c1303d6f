package domain

import (
	"math"
	"time"
)

// NextQuestion identifies the next outstanding question for a session.
type NextQuestion struct {
	QuestionID    string `json:"question_id"`
	SubcategoryID string `json:"subcategory_id"`
	Position      int    `json:"position"`
}

// ProgressSummary is the derived read model for a session's overall progress.
type ProgressSummary struct {
	WorkflowID   string        `json:"workflow_id"`
	Total        int           `json:"total"`
	Answered     int           `json:"answered"`
	Percentage   int           `json:"percentage"`
	State        SessionState  `json:"state"`
	CanResume    bool          `json:"can_resume"`
	NextQuestion *NextQuestion `json:"next_question,omitempty"`
}

// GroupProgress is a per-group slice of detailed progress.
type GroupProgress struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Percentage int `json:"percentage"`
}

// DetailedProgress aggregates progress by CSF function and category prefix.
type DetailedProgress struct {
	WorkflowID  string                   `json:"workflow_id"`
	ByFunction  map[string]GroupProgress `json:"by_function"`
	ByCategory  map[string]GroupProgress `json:"by_category"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// ExportedResponse is one answered question in a response export.
type ExportedResponse struct {
	QuestionID       string     `json:"question_id"`
	SubcategoryID    string     `json:"subcategory_id"`
	ResponseValue    string     `json:"response_value"`
	ConfidenceLevel  int        `json:"confidence_level,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	TimeSpentSeconds int        `json:"time_spent_seconds,omitempty"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
}

// ResponseExport is the read-only export of a session's answered questions.
type ResponseExport struct {
	WorkflowID        string             `json:"workflow_id"`
	ProfileID         string             `json:"profile_id"`
	State             SessionState       `json:"state"`
	TotalQuestions    int                `json:"total_questions"`
	QuestionsAnswered int                `json:"questions_answered"`
	Complete          bool               `json:"complete"`
	Responses         []ExportedResponse `json:"responses"`
	ExportedAt        time.Time          `json:"exported_at"`
}

// Percent computes a whole-number percentage, rounding to nearest.
// Returns 0 when total is 0.
func Percent(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}
