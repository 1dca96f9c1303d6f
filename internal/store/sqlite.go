package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/perimetra/assess/internal/domain"
	"github.com/perimetra/assess/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS assessment_sessions (
		session_id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL UNIQUE,
		profile_id TEXT NOT NULL,
		state TEXT NOT NULL,
		current_question_index INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		questions_answered INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON assessment_sessions(state);

	CREATE TABLE IF NOT EXISTS question_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES assessment_sessions(session_id),
		workflow_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		subcategory_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		state TEXT NOT NULL,
		response_value TEXT,
		confidence_level INTEGER,
		notes TEXT,
		time_spent_seconds INTEGER,
		answered_at INTEGER,
		last_modified INTEGER NOT NULL,
		UNIQUE(session_id, question_id)
	);
	CREATE INDEX IF NOT EXISTS idx_progress_next ON question_progress(session_id, state, position);
	CREATE INDEX IF NOT EXISTS idx_progress_workflow ON question_progress(workflow_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, workflow_id, profile_id, state,
	       current_question_index, total_questions, questions_answered,
	       metadata_json, created_at, updated_at, last_activity`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.AssessmentSession, error) {
	var session domain.AssessmentSession
	var metadata sql.NullString
	var createdAt, updatedAt, lastActivity int64

	err := row.Scan(
		&session.SessionID, &session.WorkflowID, &session.ProfileID, &session.State,
		&session.CurrentQuestionIndex, &session.TotalQuestions, &session.QuestionsAnswered,
		&metadata, &createdAt, &updatedAt, &lastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.Metadata = metadata.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	session.LastActivity = time.Unix(lastActivity, 0)

	return &session, nil
}

// CreateSession inserts a session unless its workflow already has one.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.AssessmentSession) (*domain.AssessmentSession, bool, error) {
	query := `
	INSERT INTO assessment_sessions (
		session_id, workflow_id, profile_id, state,
		current_question_index, total_questions, questions_answered,
		metadata_json, created_at, updated_at, last_activity
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(workflow_id) DO NOTHING`

	var metadata any
	if session.Metadata != "" {
		metadata = session.Metadata
	}

	result, err := s.db.ExecContext(ctx, query,
		session.SessionID, session.WorkflowID, session.ProfileID, session.State,
		session.CurrentQuestionIndex, session.TotalQuestions, session.QuestionsAnswered,
		metadata, session.CreatedAt.Unix(), session.UpdatedAt.Unix(), session.LastActivity.Unix(),
	)
	if err != nil {
		return nil, false, classify("insert session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get rows affected: %w", err)
	}

	canonical, err := s.GetSessionByWorkflow(ctx, session.WorkflowID)
	if err != nil {
		return nil, false, err
	}
	if canonical == nil {
		return nil, false, fmt.Errorf("session vanished after insert: workflow %s", session.WorkflowID)
	}
	return canonical, rows > 0, nil
}

// GetSessionByWorkflow retrieves a session by workflow ID.
func (s *SQLiteStore) GetSessionByWorkflow(ctx context.Context, workflowID string) (*domain.AssessmentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM assessment_sessions WHERE workflow_id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, workflowID))
}

// GetSession retrieves a session by session ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.AssessmentSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM assessment_sessions WHERE session_id = ?`
	return scanSession(s.db.QueryRowContext(ctx, query, sessionID))
}

// InitializeQuestions bulk-inserts progress rows and transitions the session
// to questions_loaded as a single transaction.
func (s *SQLiteStore) InitializeQuestions(ctx context.Context, sessionID string, questions []domain.QuestionProgress) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin question init", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to rollback question init", "error", rbErr)
		}
	}()

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE session_id = ?`, sessionID))
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question_progress (
			session_id, workflow_id, question_id, subcategory_id,
			position, state, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return classify("prepare question insert", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close question insert statement", "error", closeErr)
		}
	}()

	now := time.Now().Unix()
	for _, q := range questions {
		if _, err := stmt.ExecContext(ctx,
			sessionID, session.WorkflowID, q.QuestionID, q.SubcategoryID,
			q.Position, domain.QuestionNotStarted, now,
		); err != nil {
			return classify("insert question row", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE assessment_sessions
		SET total_questions = ?, state = ?, current_question_index = 1, updated_at = ?
		WHERE session_id = ?`,
		len(questions), domain.SessionQuestionsLoaded, now, sessionID)
	if err != nil {
		return classify("update session after question init", err)
	}

	if err := tx.Commit(); err != nil {
		return classify("commit question init", err)
	}
	return nil
}

const questionColumns = `id, session_id, workflow_id, question_id, subcategory_id,
	       position, state, response_value, confidence_level, notes,
	       time_spent_seconds, answered_at, last_modified`

func scanQuestion(row rowScanner) (*domain.QuestionProgress, error) {
	var q domain.QuestionProgress
	var response, notes sql.NullString
	var confidence, timeSpent, answeredAt sql.NullInt64
	var lastModified int64

	err := row.Scan(
		&q.ID, &q.SessionID, &q.WorkflowID, &q.QuestionID, &q.SubcategoryID,
		&q.Position, &q.State, &response, &confidence, &notes,
		&timeSpent, &answeredAt, &lastModified,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan question row: %w", err)
	}

	q.ResponseValue = response.String
	q.Notes = notes.String
	q.ConfidenceLevel = int(confidence.Int64)
	q.TimeSpentSeconds = int(timeSpent.Int64)
	q.LastModified = time.Unix(lastModified, 0)
	if answeredAt.Valid {
		ts := time.Unix(answeredAt.Int64, 0)
		q.AnsweredAt = &ts
	}

	return &q, nil
}

// GetQuestion retrieves one progress row by session and question ID.
func (s *SQLiteStore) GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.QuestionProgress, error) {
	query := `SELECT ` + questionColumns + ` FROM question_progress WHERE session_id = ? AND question_id = ?`
	return scanQuestion(s.db.QueryRowContext(ctx, query, sessionID, questionID))
}

// RecordAnswer applies an answer, recounts answered rows, and transitions the
// session state as a single transaction.
func (s *SQLiteStore) RecordAnswer(ctx context.Context, sessionID, questionID string, answer domain.Answer, now time.Time) (*domain.AssessmentSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin answer", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to rollback answer", "error", rbErr)
		}
	}()

	var confidence, timeSpent, notes any
	if answer.ConfidenceLevel != 0 {
		confidence = answer.ConfidenceLevel
	}
	if answer.TimeSpentSeconds != 0 {
		timeSpent = answer.TimeSpentSeconds
	}
	if answer.Notes != "" {
		notes = answer.Notes
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE question_progress
		SET state = ?, response_value = ?, confidence_level = ?, notes = ?,
		    time_spent_seconds = ?, answered_at = ?, last_modified = ?
		WHERE session_id = ? AND question_id = ?`,
		domain.QuestionAnswered, answer.ResponseValue, confidence, notes,
		timeSpent, now.Unix(), now.Unix(), sessionID, questionID)
	if err != nil {
		return nil, classify("update question row", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, domain.ErrQuestionNotFound
	}

	var answered, total int
	err = tx.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM question_progress
			 WHERE session_id = ? AND state IN (?, ?)),
			(SELECT total_questions FROM assessment_sessions WHERE session_id = ?)`,
		sessionID, domain.QuestionAnswered, domain.QuestionValidated, sessionID,
	).Scan(&answered, &total)
	if err != nil {
		return nil, classify("recount answered questions", err)
	}

	state := domain.SessionInProgress
	if answered == total {
		state = domain.SessionCompleted
	}

	// current_question_index tracks the next outstanding position so
	// progress reads stay O(1); it parks at total when none remain.
	_, err = tx.ExecContext(ctx, `
		UPDATE assessment_sessions
		SET questions_answered = ?, state = ?,
		    current_question_index = COALESCE(
		        (SELECT MIN(position) FROM question_progress
		         WHERE session_id = ? AND state IN (?, ?)),
		        total_questions),
		    updated_at = ?, last_activity = ?
		WHERE session_id = ?`,
		answered, state,
		sessionID, domain.QuestionNotStarted, domain.QuestionInProgress,
		now.Unix(), now.Unix(), sessionID)
	if err != nil {
		return nil, classify("update session after answer", err)
	}

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM assessment_sessions WHERE session_id = ?`, sessionID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit answer", err)
	}
	return session, nil
}

// UpdateSessionState sets the session state and last_activity timestamp.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, workflowID string, state domain.SessionState, lastActivity time.Time) error {
	query := `UPDATE assessment_sessions SET state = ?, last_activity = ?, updated_at = ? WHERE workflow_id = ?`
	result, err := s.db.ExecContext(ctx, query, state, lastActivity.Unix(), time.Now().Unix(), workflowID)
	if err != nil {
		return classify("update session state", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// NextQuestion returns the outstanding question with the smallest position.
func (s *SQLiteStore) NextQuestion(ctx context.Context, sessionID string) (*domain.NextQuestion, error) {
	query := `
		SELECT question_id, subcategory_id, position
		FROM question_progress
		WHERE session_id = ? AND state IN (?, ?)
		ORDER BY position ASC
		LIMIT 1`

	var next domain.NextQuestion
	err := s.db.QueryRowContext(ctx, query,
		sessionID, domain.QuestionNotStarted, domain.QuestionInProgress,
	).Scan(&next.QuestionID, &next.SubcategoryID, &next.Position)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query next question", err)
	}
	return &next, nil
}

// ListQuestions returns every progress row for a session ordered by position.
func (s *SQLiteStore) ListQuestions(ctx context.Context, sessionID string) ([]*domain.QuestionProgress, error) {
	query := `SELECT ` + questionColumns + ` FROM question_progress WHERE session_id = ? ORDER BY position ASC`
	return s.queryQuestions(ctx, query, sessionID)
}

// AnsweredQuestions returns rows in answered or validated state ordered by position.
func (s *SQLiteStore) AnsweredQuestions(ctx context.Context, sessionID string) ([]*domain.QuestionProgress, error) {
	query := `SELECT ` + questionColumns + ` FROM question_progress
		WHERE session_id = ? AND state IN (?, ?) ORDER BY position ASC`
	return s.queryQuestions(ctx, query, sessionID, domain.QuestionAnswered, domain.QuestionValidated)
}

func (s *SQLiteStore) queryQuestions(ctx context.Context, query string, args ...any) ([]*domain.QuestionProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query question rows", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close question rows", "error", closeErr)
		}
	}()

	var questions []*domain.QuestionProgress
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}
	return questions, nil
}

// classify wraps storage errors, flagging SQLite concurrency conflicts as
// transient so callers can retry.
func classify(op string, err error) error {
	if shared.IsSQLiteConflictError(err) {
		return domain.TransientStore(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
