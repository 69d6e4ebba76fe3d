// Package store keeps projects, tasks, runs, transcripts, artifacts, settings
// and audited tool calls in a SQLite database.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the record store. All methods are safe for concurrent use.
type Store struct {
	DB    *sql.DB
	Now   func() time.Time
	NewID func() string
}

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now, NewID: uuid.NewString}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// TimeFormat is fixed width so stored timestamps sort lexically.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

func (s *Store) timestamp() string {
	return s.Now().UTC().Format(TimeFormat)
}

type Project struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	RepoPath     string  `json:"repo_path"`
	CreatedAt    string  `json:"created_at"`
	LastOpenedAt *string `json:"last_opened_at"`
}

// Task modes and statuses.
const (
	ModePlan   = "plan"
	ModePhases = "phases"
	ModeReview = "review"

	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusDone     = "done"
	StatusArchived = "archived"
)

type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Run types.
const (
	RunPlan   = "plan"
	RunVerify = "verify"
	RunTool   = "tool"
)

type Run struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	PhaseID   *string `json:"phase_id"`
	RunType   string  `json:"run_type"`
	Provider  *string `json:"provider"`
	Model     *string `json:"model"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at"`
}

type Message struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Artifact kinds.
const (
	KindPlan               = "plan_md"
	KindPhaseList          = "phase_list"
	KindVerificationReport = "verification_report"
	KindHandoffPrompt      = "handoff_prompt"
	KindNotes              = "notes"
)

type Artifact struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	PhaseID   *string `json:"phase_id"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	CreatedAt string  `json:"created_at"`
	Pinned    bool    `json:"pinned"`
}

type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// ToolCall is one audited tool invocation. ArgsJSON and ResultJSON hold
// serialized JSON documents.
type ToolCall struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	ArgsJSON   string `json:"args_json"`
	ResultJSON string `json:"result_json"`
	CreatedAt  string `json:"created_at"`
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
