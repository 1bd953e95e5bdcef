// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/config"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
	"github.com/xkilldash9x/scalpel-agent/internal/observability"
)

// scriptedLLM completes every agent objective on the first step and serves
// planner replies in order, repeating the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	namespace schemas.Namespace
	plans     []string
	planCalls int
	closed    bool
}

func (s *scriptedLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(req.SystemPrompt, "project manager") {
		i := min(s.planCalls, len(s.plans)-1)
		s.planCalls++
		return s.plans[i], nil
	}
	return `{"rationale": "Nothing left to do.", "namespace": "` + string(s.namespace) +
		`", "command": "complete", "parameters": {"answer": "done"}}`, nil
}

func (s *scriptedLLM) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeEnv finishes the episode on any step.
type fakeEnv struct {
	ns     schemas.Namespace
	mu     sync.Mutex
	starts []string
	steps  []string
	closed int
}

func (e *fakeEnv) Reset(_ context.Context, opts agent.ResetOptions) (agent.Observation, agent.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, opts.Start)
	return agent.Observation{Location: "start:" + opts.Start, Text: "ready"}, agent.Info{Namespace: e.ns}, nil
}

func (e *fakeEnv) Step(_ context.Context, cmd agent.Command) (agent.Observation, agent.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, cmd.Name)
	res := agent.Succeeded("Objective marked complete.")
	return agent.Observation{Location: "end", LastResult: &res},
		agent.Info{Namespace: e.ns, Done: true, Answer: cmd.Parameters["answer"].StringVal()}, nil
}

func (e *fakeEnv) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

// fakeComponents hands out the scripted model, fresh fake environments and
// an optional archive.
type fakeComponents struct {
	llm     *scriptedLLM
	archive memory.Archive
	llmErr  error

	mu   sync.Mutex
	envs []*fakeEnv
}

func (f *fakeComponents) LLMClient(context.Context, config.Interface, *zap.Logger) (schemas.LLMClient, error) {
	if f.llmErr != nil {
		return nil, f.llmErr
	}
	return f.llm, nil
}

func (f *fakeComponents) Environment(_ context.Context, _ config.Interface, ns schemas.Namespace, _ *zap.Logger) (agent.Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env := &fakeEnv{ns: ns}
	f.envs = append(f.envs, env)
	return env, nil
}

func (f *fakeComponents) Archive(context.Context, config.Interface, *zap.Logger) (memory.Archive, func(), error) {
	return f.archive, func() {}, nil
}

func (f *fakeComponents) environments() []*fakeEnv {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeEnv(nil), f.envs...)
}

// isolateConfig keeps config discovery and log output inside a temp dir.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SCALPEL_LOGGER_LEVEL", "error")
	t.Setenv("SCALPEL_LOGGER_LOG_FILE", filepath.Join(dir, "agent.log"))
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	return dir
}

// executeCommand runs the command tree over components with stdin.
func executeCommand(t *testing.T, components componentFactory, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(components)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newFakes(ns schemas.Namespace) *fakeComponents {
	return &fakeComponents{llm: &scriptedLLM{namespace: ns}}
}

func requireOneEnv(t *testing.T, f *fakeComponents) *fakeEnv {
	t.Helper()
	envs := f.environments()
	require.Len(t, envs, 1)
	return envs[0]
}
