// internal/agent/mocks_test.go
package agent_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// scriptedMind replays replies in order and records every prompt it saw.
type scriptedMind struct {
	replies []schemas.Reply
	errs    []error
	prompts []agent.Prompt
}

func (s *scriptedMind) Decide(_ context.Context, p agent.Prompt) (schemas.Reply, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, p)
	if i < len(s.errs) && s.errs[i] != nil {
		return schemas.Reply{}, s.errs[i]
	}
	if i >= len(s.replies) {
		return s.replies[len(s.replies)-1], nil
	}
	return s.replies[i], nil
}

// fakeEnv is a minimal environment whose "complete" command ends the episode
// and whose other commands succeed unless listed in failing.
type fakeEnv struct {
	resets   []agent.ResetOptions
	commands []agent.Command
	failing  map[string]agent.ActionResult
	stepErr  error
	closed   bool
}

func (e *fakeEnv) info() agent.Info {
	return agent.Info{
		Namespace: schemas.NamespaceBrowser,
		Actions: []agent.ActionInfo{
			{Name: "click", Params: []agent.ParamSpec{{Name: "id", Type: agent.ParamInt, Required: true}}},
			{Name: "complete", Params: []agent.ParamSpec{{Name: "answer", Type: agent.ParamString}}},
		},
	}
}

func (e *fakeEnv) Reset(_ context.Context, opts agent.ResetOptions) (agent.Observation, agent.Info, error) {
	e.resets = append(e.resets, opts)
	return agent.Observation{Location: "https://start.test/", Text: `<link id="0">Go</link>`}, e.info(), nil
}

func (e *fakeEnv) Step(_ context.Context, cmd agent.Command) (agent.Observation, agent.Info, error) {
	if e.stepErr != nil {
		return agent.Observation{}, agent.Info{}, e.stepErr
	}
	e.commands = append(e.commands, cmd)
	loc := fmt.Sprintf("https://start.test/page%d", len(e.commands))
	info := e.info()
	res := agent.Succeeded("")
	if r, ok := e.failing[cmd.Name]; ok {
		res = r
	}
	if cmd.Name == "complete" {
		info.Done = true
		info.Answer = cmd.Parameters["answer"].StringVal()
	}
	return agent.Observation{Location: loc, Text: "page", LastResult: &res}, info, nil
}

func (e *fakeEnv) Close() error {
	e.closed = true
	return nil
}

// memArchive collects archived messages.
type memArchive struct {
	mu   sync.Mutex
	msgs []memory.Message
}

func (a *memArchive) Insert(_ context.Context, m memory.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, m)
	return nil
}
