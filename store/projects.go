package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const projectColumns = `id,name,repo_path,created_at,last_opened_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	var opened sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &p.CreatedAt, &opened)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.LastOpenedAt = stringPtr(opened)
	return p, err
}

func (s *Store) CreateProject(ctx context.Context, name, repoPath string) (Project, error) {
	p := Project{ID: s.NewID(), Name: name, RepoPath: repoPath, CreatedAt: s.timestamp()}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO projects(id,name,repo_path,created_at,last_opened_at) VALUES (?,?,?,?,NULL)`,
		p.ID, p.Name, p.RepoPath, p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	return scanProject(s.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ListProjects orders by most recently opened, falling back to creation time.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY COALESCE(last_opened_at, created_at) DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TouchProject records that the project was opened now.
func (s *Store) TouchProject(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE projects SET last_opened_at=? WHERE id=?`, s.timestamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskColumns = `id,project_id,title,mode,status,created_at,updated_at`

func scanTask(row rowScanner) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Mode, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// CreateTask adds a draft task. An empty mode defaults to ModePlan.
func (s *Store) CreateTask(ctx context.Context, projectID, title, mode string) (Task, error) {
	if mode == "" {
		mode = ModePlan
	}
	now := s.timestamp()
	t := Task{ID: s.NewID(), ProjectID: projectID, Title: title, Mode: mode, Status: StatusDraft, CreatedAt: now, UpdatedAt: now}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, t.Mode, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	return scanTask(s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY updated_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string) error {
	switch status {
	case StatusDraft, StatusActive, StatusDone, StatusArchived:
	default:
		return fmt.Errorf("invalid task status %q", status)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, s.timestamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AllSettings returns every stored setting keyed by name.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	list, err := s.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, st := range list {
		out[st.Key] = st.Value
	}
	return out, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key,value,updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Setting{}
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, s.timestamp())
	return err
}

// SetSettings writes all values in one transaction.
func (s *Store) SetSettings(ctx context.Context, values map[string]string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := s.timestamp()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, k, v, now); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}
