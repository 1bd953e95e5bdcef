// File: internal/orchestrator/orchestrator.go
// Description: Drives a multi-agent objective. A planner model breaks the
// objective into tasks, and each task is handed to the registered agent it
// names, one at a time.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
)

// Runner carries out one task objective and reports the agent's run.
type Runner func(ctx context.Context, objective string) (agent.RunResult, error)

// AgentSpec registers an agent the planner may assign tasks to.
type AgentSpec struct {
	Name        string
	Description string
	Run         Runner
}

// Options tune the orchestrator.
type Options struct {
	// MaxRounds bounds planning rounds; each round runs at most one task.
	MaxRounds int
	// OnPlan, when set, receives the merged plan after every round.
	OnPlan func(round int, plan string)
}

// Report is the outcome of an orchestrated objective.
type Report struct {
	Objective string
	Plan      Plan
	Rounds    int
	// Completed is set when the planner had no open task left to run.
	Completed bool
}

// Orchestrator manages the plan-execute loop. It is injected with the
// planner client and the agent registry.
type Orchestrator struct {
	logger *zap.Logger
	client schemas.LLMClient
	agents map[string]AgentSpec
	opts   Options
}

// New creates an Orchestrator over the given agents.
func New(logger *zap.Logger, client schemas.LLMClient, opts Options, agents ...AgentSpec) (*Orchestrator, error) {
	if logger == nil || client == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one agent")
	}
	registry := make(map[string]AgentSpec, len(agents))
	for _, a := range agents {
		name := strings.ToLower(strings.TrimSpace(a.Name))
		if name == "" || a.Run == nil {
			return nil, fmt.Errorf("agent %q must have a name and a runner", a.Name)
		}
		if _, dup := registry[name]; dup {
			return nil, fmt.Errorf("agent %q registered twice", name)
		}
		a.Name = name
		registry[name] = a
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 10
	}
	return &Orchestrator{
		logger: logger.Named("orchestrator"),
		client: client,
		agents: registry,
		opts:   opts,
	}, nil
}

func (o *Orchestrator) known(name string) bool {
	_, ok := o.agents[name]
	return ok
}

// roster lists the agents sorted by name.
func (o *Orchestrator) roster() []AgentSpec {
	out := make([]AgentSpec, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run plans and executes objective until the planner leaves no open task or
// MaxRounds is reached. A failed agent run abandons its task and the planner
// is asked to revise; planner failures and cancellation end the run.
func (o *Orchestrator) Run(ctx context.Context, objective string) (Report, error) {
	report := Report{Objective: objective}
	o.logger.Info("Orchestration started.", zap.String("objective", objective), zap.Int("max_rounds", o.opts.MaxRounds))

	var previous *Task
	for report.Rounds < o.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Rounds++

		proposal, err := o.propose(ctx, objective, &report.Plan)
		if err != nil {
			return report, fmt.Errorf("round %d: %w", report.Rounds, err)
		}
		report.Plan.Merge(proposal)
		if o.opts.OnPlan != nil {
			o.opts.OnPlan(report.Rounds, report.Plan.String())
		}

		task := report.Plan.NextTask()
		if task == nil {
			report.Completed = true
			break
		}
		if err := o.execute(ctx, task, previous); err != nil {
			return report, err
		}
		previous = task
	}

	o.logger.Info("Orchestration finished.", zap.Bool("completed", report.Completed), zap.Int("rounds", report.Rounds))
	return report, nil
}

// execute hands task to its assignee. Only cancellation is returned as an
// error; any other failure abandons the task.
func (o *Orchestrator) execute(ctx context.Context, task *Task, previous *Task) error {
	spec := o.agents[task.Assignee]
	task.State = StateInProgress
	log := o.logger.With(zap.String("task", task.ID), zap.String("assignee", spec.Name))
	log.Info("Task started.", zap.String("goal", task.Goal))

	res, err := spec.Run(ctx, TaskObjective(task, previous))
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		task.State = StateAbandoned
		task.Result = "Interrupted."
		return err
	case err != nil:
		task.State = StateAbandoned
		task.Result = fmt.Sprintf("Failed: %v", err)
		log.Warn("Task failed.", zap.Error(err))
	case res.Completed:
		task.State = StateCompleted
		task.Result = res.Answer
		log.Info("Task completed.", zap.Int("steps", res.Steps))
	default:
		task.State = StateAbandoned
		task.Result = fmt.Sprintf("Not completed after %d steps.", res.Steps)
		log.Warn("Task not completed.", zap.Int("steps", res.Steps))
	}
	return nil
}

// TaskObjective is the objective handed to the assignee of task.
func TaskObjective(task *Task, previous *Task) string {
	var b strings.Builder
	b.WriteString(task.Goal)
	if task.Description != "" {
		b.WriteString("\nDETAILS: ")
		b.WriteString(task.Description)
	}
	if previous != nil && previous.Result != "" {
		fmt.Fprintf(&b, "\nRESULT OF PREVIOUS TASK (%s): %s", previous.Goal, previous.Result)
	}
	return b.String()
}

func (o *Orchestrator) propose(ctx context.Context, objective string, current *Plan) (Plan, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: PlannerSystemPrompt(o.roster()),
		UserPrompt:   PlannerUserPrompt(objective, current),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	}
	raw, err := o.client.Generate(ctx, req)
	if err != nil {
		return Plan{}, fmt.Errorf("planner generation failed: %w", err)
	}
	plan, err := ParsePlan(raw, o.known)
	if err != nil {
		return Plan{}, err
	}
	o.logger.Debug("Planner proposed tasks.", zap.Int("tasks", len(plan.Tasks)))
	return plan, nil
}
