package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	s.NewID = func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	return s
}

func seedTask(t *testing.T, s *Store) (Project, Task) {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "demo", "/src/demo")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err := s.CreateTask(ctx, p.ID, "Add caching", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return p, task
}

func TestPath(t *testing.T) {
	if got := Path("/ws"); got != filepath.Join("/ws", ".spectrail", "spectrail.db") {
		t.Errorf("Path = %s", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := Migrate(s.DB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := s.DB.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("schema version = %d", version)
	}
}

func TestProjectsAndTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, task := seedTask(t, s)

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "demo" || got.RepoPath != "/src/demo" || got.LastOpenedAt != nil {
		t.Errorf("unexpected project %+v", got)
	}
	if err := s.TouchProject(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetProject(ctx, p.ID)
	if got.LastOpenedAt == nil {
		t.Error("last_opened_at not set")
	}
	if err := s.TouchProject(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if task.Mode != ModePlan || task.Status != StatusDraft {
		t.Errorf("unexpected task defaults %+v", task)
	}
	second, err := s.CreateTask(ctx, p.ID, "Second", ModeReview)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := s.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != second.ID {
		t.Errorf("expected newest task first, got %+v", tasks)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, StatusActive); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.GetTask(ctx, task.ID)
	if updated.Status != StatusActive || updated.UpdatedAt == task.UpdatedAt {
		t.Errorf("status not updated: %+v", updated)
	}
	if err := s.UpdateTaskStatus(ctx, task.ID, "bogus"); err == nil {
		t.Error("expected invalid status error")
	}
	if _, err := s.GetTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskRequiresProject(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateTask(context.Background(), "no-such-project", "x", ""); err == nil {
		t.Error("expected a foreign key violation")
	}
}

func TestRunsMessagesAndToolCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, task := seedTask(t, s)

	run, err := s.CreateRun(ctx, task.ID, RunPlan, "openai", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	if run.EndedAt != nil || run.Provider == nil || *run.Model != "gpt-4o-mini" {
		t.Errorf("unexpected run %+v", run)
	}

	for _, role := range []string{"system", "user", "assistant", "tool"} {
		if _, err := s.AppendMessage(ctx, run.ID, role, role+" text"); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := s.ListMessages(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 || msgs[0].Role != "system" || msgs[3].Role != "tool" {
		t.Errorf("unexpected messages %+v", msgs)
	}

	if _, err := s.InsertToolCall(ctx, ToolCall{RunID: run.ID, Name: "list_files", ArgsJSON: `{}`, ResultJSON: `{"files":[]}`}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertToolCall(ctx, ToolCall{RunID: run.ID, Name: "git_status", ArgsJSON: `{}`, ResultJSON: `{"code":0}`}); err != nil {
		t.Fatal(err)
	}
	calls, err := s.ListToolCalls(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0].Name != "list_files" || calls[1].ResultJSON != `{"code":0}` {
		t.Errorf("unexpected tool calls %+v", calls)
	}

	if err := s.FinishRun(ctx, run.ID); err != nil {
		t.Fatal(err)
	}
	verify, err := s.CreateRun(ctx, task.ID, RunVerify, "", "")
	if err != nil {
		t.Fatal(err)
	}
	runs, err := s.ListRuns(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != verify.ID || runs[1].EndedAt == nil || runs[0].Provider != nil {
		t.Errorf("unexpected runs %+v", runs)
	}
	if err := s.FinishRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertArtifactReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, task := seedTask(t, s)

	first, err := s.UpsertArtifact(ctx, task.ID, "", KindPlan, "v1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.UpsertArtifact(ctx, task.ID, "", KindPlan, "v2")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || second.Content != "v2" || second.PhaseID != nil {
		t.Errorf("expected in-place replacement, got %+v then %+v", first, second)
	}

	if _, err := s.UpsertArtifact(ctx, task.ID, "phase-1", KindPlan, "phase plan"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertArtifact(ctx, task.ID, "", KindVerificationReport, "report"); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListArtifacts(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Kind != KindVerificationReport {
		t.Errorf("unexpected artifacts %+v", list)
	}

	got, err := s.GetArtifact(ctx, task.ID, "", KindPlan)
	if err != nil || got.Content != "v2" {
		t.Errorf("GetArtifact = %+v, %v", got, err)
	}
	phase, err := s.GetArtifact(ctx, task.ID, "phase-1", KindPlan)
	if err != nil || phase.Content != "phase plan" || phase.PhaseID == nil {
		t.Errorf("phase artifact = %+v, %v", phase, err)
	}
	if _, err := s.GetArtifact(ctx, task.ID, "", KindNotes); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, "model", "gpt-4o"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSettings(ctx, map[string]string{"model": "gpt-4o-mini", "temperature": "0.1"}); err != nil {
		t.Fatal(err)
	}
	all, err := s.AllSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["model"] != "gpt-4o-mini" || all["temperature"] != "0.1" {
		t.Errorf("unexpected settings %v", all)
	}
	list, _ := s.ListSettings(ctx)
	if list[0].Key != "model" || list[1].Key != "temperature" {
		t.Errorf("settings not sorted: %+v", list)
	}
}
