// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
)

// -- Mock Implementations for Testing --

type mockPlanner struct {
	mock.Mock
}

func (m *mockPlanner) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockPlanner) Close() error { return nil }

// replies queues planner replies in order.
func (m *mockPlanner) replies(raw ...string) {
	for _, r := range raw {
		m.On("Generate", mock.Anything, mock.Anything).Return(r, nil).Once()
	}
}

// prompts returns the user prompt of every planner call.
func (m *mockPlanner) prompts() []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).(schemas.GenerationRequest).UserPrompt)
	}
	return out
}

// recordingRunner answers with scripted results and records objectives.
type recordingRunner struct {
	objectives []string
	results    []agent.RunResult
	errs       []error
}

func (r *recordingRunner) run(_ context.Context, objective string) (agent.RunResult, error) {
	i := len(r.objectives)
	r.objectives = append(r.objectives, objective)
	var (
		res agent.RunResult
		err error
	)
	if i < len(r.results) {
		res = r.results[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return res, err
}

func task(id, assignee string, state TaskState) *Task {
	return &Task{ID: id, Goal: "goal " + id, Assignee: assignee, State: state}
}

func ids(p Plan) []string {
	var out []string
	for _, t := range p.Tasks {
		out = append(out, t.ID)
	}
	return out
}

// -- Plan --

func TestPlan_Merge(t *testing.T) {
	t.Run("EmptyProposalKeepsPlan", func(t *testing.T) {
		p := Plan{Tasks: []*Task{task("1", "browser", StateOpen)}}
		p.Merge(Plan{})
		assert.Equal(t, []string{"1"}, ids(p))
	})

	t.Run("EmptyPlanAdopts", func(t *testing.T) {
		var p Plan
		p.Merge(Plan{Tasks: []*Task{task("1", "browser", StateOpen), task("2", "terminal", StateOpen)}})
		assert.Equal(t, []string{"1", "2"}, ids(p))
	})

	t.Run("ReplacesFromFirstUnfinished", func(t *testing.T) {
		p := Plan{Tasks: []*Task{
			task("1", "browser", StateCompleted),
			task("2", "browser", StateAbandoned),
			task("3", "terminal", StateOpen),
			task("4", "terminal", StateOpen),
		}}
		p.Merge(Plan{Tasks: []*Task{task("3b", "browser", StateOpen)}})
		assert.Equal(t, []string{"1", "2", "3b"}, ids(p))
	})

	t.Run("InProgressIsReplaced", func(t *testing.T) {
		p := Plan{Tasks: []*Task{task("1", "browser", StateCompleted), task("2", "browser", StateInProgress)}}
		p.Merge(Plan{Tasks: []*Task{task("9", "browser", StateOpen)}})
		assert.Equal(t, []string{"1", "9"}, ids(p))
	})

	t.Run("AllFinishedAppends", func(t *testing.T) {
		p := Plan{Tasks: []*Task{task("1", "browser", StateCompleted)}}
		p.Merge(Plan{Tasks: []*Task{task("2", "terminal", StateOpen)}})
		assert.Equal(t, []string{"1", "2"}, ids(p))
	})
}

func TestPlan_NextTaskAndString(t *testing.T) {
	p := Plan{Tasks: []*Task{
		task("1", "browser", StateCompleted),
		task("2", "terminal", StateAbandoned),
		task("3", "terminal", StateInProgress),
		task("4", "browser", StateOpen),
	}}
	require.NotNil(t, p.NextTask())
	assert.Equal(t, "4", p.NextTask().ID)

	want := "[x] 1 [browser] goal 1\n" +
		"[-] 2 [terminal] goal 2\n" +
		"[~] 3 [terminal] goal 3\n" +
		"[ ] 4 [browser] goal 4\n"
	assert.Equal(t, want, p.String())

	assert.Nil(t, (&Plan{}).NextTask())
}

func TestParsePlan(t *testing.T) {
	known := func(name string) bool { return name == "browser" || name == "terminal" }

	t.Run("Valid", func(t *testing.T) {
		raw := "Here you go:\n```json\n" +
			`{"tasks": [{"id": "1", "goal": " Find the price ", "description": "on redfin", "assignee": "Browser", "state": "completed"},` +
			`{"goal": "Write it down", "assignee": "terminal"}]}` + "\n```"
		plan, err := ParsePlan(raw, known)
		require.NoError(t, err)
		require.Len(t, plan.Tasks, 2)
		assert.Equal(t, "Find the price", plan.Tasks[0].Goal)
		assert.Equal(t, "browser", plan.Tasks[0].Assignee)
		assert.Equal(t, StateOpen, plan.Tasks[0].State)
		assert.Len(t, plan.Tasks[1].ID, 8)
	})

	t.Run("EmptyList", func(t *testing.T) {
		plan, err := ParsePlan(`{"tasks": []}`, known)
		require.NoError(t, err)
		assert.Empty(t, plan.Tasks)
	})

	failures := map[string]string{
		"NoJSON":          "I could not come up with a plan.",
		"BadJSON":         `{"tasks": "soon"}`,
		"NoGoal":          `{"tasks": [{"id": "1", "assignee": "browser"}]}`,
		"UnknownAssignee": `{"tasks": [{"id": "1", "goal": "fly", "assignee": "pilot"}]}`,
	}
	for name, raw := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan(raw, known)
			var verr *agent.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

// -- Orchestrator --

func newTestOrchestrator(t *testing.T, planner *mockPlanner, maxRounds int, specs ...AgentSpec) *Orchestrator {
	t.Helper()
	o, err := New(zap.NewNop(), planner, Options{MaxRounds: maxRounds}, specs...)
	require.NoError(t, err)
	return o
}

func TestNew_Validation(t *testing.T) {
	runner := func(context.Context, string) (agent.RunResult, error) { return agent.RunResult{}, nil }
	planner := new(mockPlanner)

	_, err := New(zap.NewNop(), nil, Options{}, AgentSpec{Name: "browser", Run: runner})
	assert.Error(t, err)
	_, err = New(zap.NewNop(), planner, Options{})
	assert.Error(t, err)
	_, err = New(zap.NewNop(), planner, Options{}, AgentSpec{Name: "browser"})
	assert.Error(t, err)
	_, err = New(zap.NewNop(), planner, Options{},
		AgentSpec{Name: "browser", Run: runner}, AgentSpec{Name: "Browser", Run: runner})
	assert.Error(t, err)

	o, err := New(zap.NewNop(), planner, Options{}, AgentSpec{Name: " Browser ", Run: runner})
	require.NoError(t, err)
	assert.True(t, o.known("browser"))
	assert.Equal(t, 10, o.opts.MaxRounds)
}

func TestOrchestrator_Run_Completes(t *testing.T) {
	planner := new(mockPlanner)
	planner.replies(
		`{"tasks": [{"id": "1", "goal": "Find the price", "description": "use redfin", "assignee": "browser"},
		            {"id": "2", "goal": "Save the price", "assignee": "terminal"}]}`,
		`{"tasks": []}`,
		`{"tasks": []}`,
	)
	browser := &recordingRunner{results: []agent.RunResult{{Completed: true, Answer: "$740k", Steps: 4}}}
	terminal := &recordingRunner{results: []agent.RunResult{{Completed: true, Answer: "saved", Steps: 2}}}

	var rounds []int
	o, err := New(zap.NewNop(), planner, Options{MaxRounds: 5, OnPlan: func(r int, _ string) { rounds = append(rounds, r) }},
		AgentSpec{Name: "browser", Description: "drives a web browser", Run: browser.run},
		AgentSpec{Name: "terminal", Description: "drives a bash terminal", Run: terminal.run},
	)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), "Save the price of 123 Main St to price.txt")
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, []int{1, 2, 3}, rounds)
	assert.Equal(t, "[x] 1 [browser] Find the price\n[x] 2 [terminal] Save the price\n", report.Plan.String())

	require.Len(t, browser.objectives, 1)
	assert.Equal(t, "Find the price\nDETAILS: use redfin", browser.objectives[0])
	require.Len(t, terminal.objectives, 1)
	assert.Equal(t, "Save the price\nRESULT OF PREVIOUS TASK (Find the price): $740k", terminal.objectives[0])

	prompts := planner.prompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[0], "CURRENT PLAN:\nNone")
	assert.Contains(t, prompts[1], "[x] 1 [browser] Find the price")
	assert.Contains(t, prompts[1], "RESULTS:\n* 1: $740k")

	sys := planner.Calls[0].Arguments.Get(1).(schemas.GenerationRequest)
	assert.Contains(t, sys.SystemPrompt, "* browser: drives a web browser\n* terminal: drives a bash terminal\n")
	assert.True(t, sys.Options.ForceJSONFormat)
	assert.Equal(t, schemas.TierPowerful, sys.Tier)
}

func TestOrchestrator_Run_RevisesAfterFailure(t *testing.T) {
	planner := new(mockPlanner)
	planner.replies(
		`{"tasks": [{"id": "1", "goal": "Open the site", "assignee": "browser"}]}`,
		`{"tasks": [{"id": "1b", "goal": "Try the mirror", "assignee": "browser"}]}`,
		`{"tasks": []}`,
	)
	browser := &recordingRunner{
		results: []agent.RunResult{{}, {Completed: true, Answer: "ok"}},
		errs:    []error{errors.New("browser crashed")},
	}
	o := newTestOrchestrator(t, planner, 5, AgentSpec{Name: "browser", Run: browser.run})

	report, err := o.Run(context.Background(), "objective")
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, []string{"1", "1b"}, ids(report.Plan))
	assert.Equal(t, StateAbandoned, report.Plan.Tasks[0].State)
	assert.Equal(t, StateCompleted, report.Plan.Tasks[1].State)
	assert.Contains(t, planner.prompts()[1], "* 1: Failed: browser crashed")
	// An abandoned task's note is still handed on.
	assert.True(t, strings.HasSuffix(browser.objectives[1], "RESULT OF PREVIOUS TASK (Open the site): Failed: browser crashed"))
}

func TestOrchestrator_Run_IncompleteRunIsAbandoned(t *testing.T) {
	planner := new(mockPlanner)
	planner.replies(
		`{"tasks": [{"id": "1", "goal": "Loop", "assignee": "browser"}]}`,
		`{"tasks": [{"id": "2", "goal": "Loop again", "assignee": "browser"}]}`,
	)
	browser := &recordingRunner{results: []agent.RunResult{{Steps: 30}, {Steps: 30}}}
	o := newTestOrchestrator(t, planner, 2, AgentSpec{Name: "browser", Run: browser.run})

	report, err := o.Run(context.Background(), "objective")
	require.NoError(t, err)
	assert.False(t, report.Completed)
	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, "[-] 1 [browser] Loop\n[-] 2 [browser] Loop again\n", report.Plan.String())
	assert.Equal(t, "Not completed after 30 steps.", report.Plan.Tasks[0].Result)
}

func TestOrchestrator_Run_Errors(t *testing.T) {
	runner := &recordingRunner{}

	t.Run("PlannerTransport", func(t *testing.T) {
		planner := new(mockPlanner)
		planner.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("503")).Once()
		o := newTestOrchestrator(t, planner, 3, AgentSpec{Name: "browser", Run: runner.run})

		_, err := o.Run(context.Background(), "objective")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "planner generation failed")
	})

	t.Run("PlannerGarbage", func(t *testing.T) {
		planner := new(mockPlanner)
		planner.replies(`{"tasks": [{"goal": "x", "assignee": "nobody"}]}`)
		o := newTestOrchestrator(t, planner, 3, AgentSpec{Name: "browser", Run: runner.run})

		_, err := o.Run(context.Background(), "objective")
		var verr *agent.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("Canceled", func(t *testing.T) {
		planner := new(mockPlanner)
		planner.replies(`{"tasks": [{"id": "1", "goal": "x", "assignee": "browser"}]}`)
		canceled := &recordingRunner{errs: []error{context.Canceled}}
		o := newTestOrchestrator(t, planner, 3, AgentSpec{Name: "browser", Run: canceled.run})

		report, err := o.Run(context.Background(), "objective")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateAbandoned, report.Plan.Tasks[0].State)
	})

	t.Run("CanceledBeforeStart", func(t *testing.T) {
		planner := new(mockPlanner)
		o := newTestOrchestrator(t, planner, 3, AgentSpec{Name: "browser", Run: runner.run})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := o.Run(ctx, "objective")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, report.Rounds)
		planner.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
}
