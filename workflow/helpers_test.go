package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martinemde/spectrail/config"
	"github.com/martinemde/spectrail/llm"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/sandbox"
	"github.com/martinemde/spectrail/store"
)

// chatCall is one captured Chat request.
type chatCall struct {
	messages []llm.Message
	tools    []llm.ToolSchema
}

// fakeChat replays scripted replies; once the script runs out it keeps
// returning the last entry.
type fakeChat struct {
	calls   []chatCall
	replies []*llm.Reply
	err     error
}

func (f *fakeChat) Chat(_ context.Context, messages []llm.Message, tools []llm.ToolSchema) (*llm.Reply, error) {
	f.calls = append(f.calls, chatCall{messages: append([]llm.Message(nil), messages...), tools: tools})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	i := len(f.calls) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

func textReply(text string) *llm.Reply {
	return &llm.Reply{Content: text, FinishReason: "stop"}
}

func toolReply(calls ...llm.ToolCall) *llm.Reply {
	return &llm.Reply{ToolCalls: calls, FinishReason: "tool_calls"}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

// scriptedSpawner answers spawn requests keyed by "program arg0".
type scriptedSpawner struct {
	outputs map[string]sandbox.ExecResult
	calls   []string
}

func (s *scriptedSpawner) spawn(_ context.Context, program string, args []string, _ string, _ time.Duration) (sandbox.ExecResult, error) {
	key := program
	if len(args) > 0 {
		key += " " + args[0]
	}
	s.calls = append(s.calls, program+" "+strings.Join(args, " "))
	if out, ok := s.outputs[key]; ok {
		return out, nil
	}
	return sandbox.ExecResult{}, fmt.Errorf("unexpected command %s", key)
}

type testEnv struct {
	store   *store.Store
	engine  *Engine
	chat    *fakeChat
	spawner *scriptedSpawner
	events  *EventEmitter
	project store.Project
	task    store.Task
	repo    string
}

// newTestEnv seeds a project over a temp repository and an engine whose
// model and process spawner are fakes. The API key comes from the
// environment lookup unless the test stores one.
func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	repo := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(repo, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	project, err := st.CreateProject(ctx, "demo", repo)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err := st.CreateTask(ctx, project.ID, "Add caching", store.ModePlan)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	env := &testEnv{
		store:   st,
		chat:    &fakeChat{},
		spawner: &scriptedSpawner{outputs: map[string]sandbox.ExecResult{}},
		events:  NewEventEmitter(4096),
		project: project,
		task:    task,
		repo:    repo,
	}
	env.engine = NewEngine(st,
		WithChatFactory(func(llm.Config) (ChatClient, error) { return env.chat, nil }),
		WithWorkspace(func(root sandbox.Root, snap config.Snapshot) repotools.Workspace {
			return repotools.Workspace{Root: root, CommandTimeout: snap.CommandTimeout, Spawn: env.spawner.spawn}
		}),
		WithGetenv(func(name string) string {
			if name == config.APIKeyEnv {
				return "sk-test"
			}
			return ""
		}),
		WithEvents(env.events),
	)
	return env
}

func (env *testEnv) messages(t *testing.T, runID string) []store.Message {
	t.Helper()
	msgs, err := env.store.ListMessages(context.Background(), runID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func roles(msgs []store.Message) string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return strings.Join(out, ",")
}

// drain closes the emitter and returns the kinds it delivered.
func (env *testEnv) drain() map[EventKind]int {
	env.events.Close()
	seen := map[EventKind]int{}
	for ev := range env.events.Events() {
		seen[ev.Kind]++
	}
	return seen
}
