package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `id,task_id,phase_id,run_type,provider,model,started_at,ended_at`

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var phase, provider, model, ended sql.NullString
	err := row.Scan(&r.ID, &r.TaskID, &phase, &r.RunType, &provider, &model, &r.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	r.PhaseID = stringPtr(phase)
	r.Provider = stringPtr(provider)
	r.Model = stringPtr(model)
	r.EndedAt = stringPtr(ended)
	return r, err
}

// CreateRun starts a run of runType for a task. Provider and model may be
// empty.
func (s *Store) CreateRun(ctx context.Context, taskID, runType, provider, model string) (Run, error) {
	r := Run{ID: s.NewID(), TaskID: taskID, RunType: runType, StartedAt: s.timestamp()}
	if provider != "" {
		r.Provider = &provider
	}
	if model != "" {
		r.Model = &model
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO runs(`+runColumns+`) VALUES (?,?,NULL,?,?,?,?,NULL)`,
		r.ID, r.TaskID, r.RunType, nullable(provider), nullable(model), r.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

func (s *Store) FinishRun(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE runs SET ended_at=? WHERE id=?`, s.timestamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	return scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// ListRuns returns a task's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, taskID string) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE task_id=? ORDER BY seq DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, runID, role, content string) (Message, error) {
	m := Message{ID: s.NewID(), RunID: runID, Role: role, Content: content, CreatedAt: s.timestamp()}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO messages(id,run_id,role,content,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.RunID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns a run's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, runID string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,run_id,role,content,created_at FROM messages WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RunID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// InsertToolCall stores an audited call. ID and CreatedAt are filled in
// when empty.
func (s *Store) InsertToolCall(ctx context.Context, tc ToolCall) (ToolCall, error) {
	if tc.ID == "" {
		tc.ID = s.NewID()
	}
	if tc.CreatedAt == "" {
		tc.CreatedAt = s.timestamp()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO tool_calls(id,run_id,name,args_json,result_json,created_at) VALUES (?,?,?,?,?,?)`,
		tc.ID, tc.RunID, tc.Name, tc.ArgsJSON, tc.ResultJSON, tc.CreatedAt)
	if err != nil {
		return ToolCall{}, fmt.Errorf("insert tool call: %w", err)
	}
	return tc, nil
}

// ListToolCalls returns a run's tool calls in insertion order.
func (s *Store) ListToolCalls(ctx context.Context, runID string) ([]ToolCall, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,run_id,name,args_json,result_json,created_at FROM tool_calls WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ToolCall{}
	for rows.Next() {
		var tc ToolCall
		if err := rows.Scan(&tc.ID, &tc.RunID, &tc.Name, &tc.ArgsJSON, &tc.ResultJSON, &tc.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, tc)
	}
	return res, rows.Err()
}

const artifactColumns = `id,task_id,phase_id,kind,content,created_at,pinned`

func scanArtifact(row rowScanner) (Artifact, error) {
	var a Artifact
	var phase sql.NullString
	var pinned int
	err := row.Scan(&a.ID, &a.TaskID, &phase, &a.Kind, &a.Content, &a.CreatedAt, &pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.PhaseID = stringPtr(phase)
	a.Pinned = pinned != 0
	return a, err
}

// UpsertArtifact stores content under (taskID, phaseID, kind), replacing
// the content of an existing artifact with the same key. An empty phaseID
// means the task-level artifact.
func (s *Store) UpsertArtifact(ctx context.Context, taskID, phaseID, kind, content string) (Artifact, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Artifact{}, err
	}
	defer tx.Rollback()

	now := s.timestamp()
	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM artifacts WHERE task_id=? AND COALESCE(phase_id,'')=? AND kind=? LIMIT 1`,
		taskID, phaseID, kind).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = s.NewID()
		if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts(`+artifactColumns+`) VALUES (?,?,?,?,?,?,0)`,
			id, taskID, nullable(phaseID), kind, content, now); err != nil {
			return Artifact{}, fmt.Errorf("insert artifact: %w", err)
		}
	case err != nil:
		return Artifact{}, err
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE artifacts SET content=?, created_at=? WHERE id=?`, content, now, id); err != nil {
			return Artifact{}, fmt.Errorf("update artifact: %w", err)
		}
	}

	a, err := scanArtifact(tx.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id=?`, id))
	if err != nil {
		return Artifact{}, err
	}
	return a, tx.Commit()
}

func (s *Store) GetArtifact(ctx context.Context, taskID, phaseID, kind string) (Artifact, error) {
	return scanArtifact(s.DB.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE task_id=? AND COALESCE(phase_id,'')=? AND kind=?`,
		taskID, phaseID, kind))
}

// ListArtifacts returns a task's artifacts, most recently written first.
func (s *Store) ListArtifacts(ctx context.Context, taskID string) ([]Artifact, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE task_id=? ORDER BY created_at DESC, rowid DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
