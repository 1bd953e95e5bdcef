// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// Archiver receives every message a run produces. memory.Archive and the
// Postgres recall store both satisfy it.
type Archiver interface {
	Insert(ctx context.Context, msg memory.Message) error
}

// EventKind classifies transcript events.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventMessage  EventKind = "message"
	EventFinished EventKind = "finished"
)

// Event is one entry of a run's live transcript.
type Event struct {
	RunID   string          `json:"run_id"`
	Kind    EventKind       `json:"kind"`
	Step    int             `json:"step"`
	Message *memory.Message `json:"message,omitempty"`
	Result  *RunResult      `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`
}

// Observer is called synchronously for every transcript event. It must not
// block.
type Observer func(Event)

// Options tune an Agent.
type Options struct {
	MaxSteps    int
	StepTimeout time.Duration
	Archive     Archiver
	Observer    Observer
}

// Agent drives one environment toward an objective: observe, decide, act,
// record, until the environment reports completion or the step budget runs
// out. Runs are serialized.
type Agent struct {
	env    Environment
	mind   Decider
	mem    *memory.FIFO
	opts   Options
	logger *zap.Logger

	mu sync.Mutex
}

// New assembles an agent. MaxSteps defaults to 30 when not positive.
func New(logger *zap.Logger, env Environment, mind Decider, mem *memory.FIFO, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 30
	}
	return &Agent{
		env:    env,
		mind:   mind,
		mem:    mem,
		opts:   opts,
		logger: logger.Named("agent"),
	}
}

// Run pursues objective starting from start (environment default when
// empty). The context is only checked between steps; a step in flight is
// bounded by the step timeout instead. A nil error with Completed false
// means the step budget ran out.
func (a *Agent) Run(ctx context.Context, objective, start string) (result RunResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result = RunResult{RunID: uuidNewString()}
	log := a.logger.With(zap.String("run_id", result.RunID))
	a.emit(Event{RunID: result.RunID, Kind: EventStarted})
	defer func() {
		ev := Event{RunID: result.RunID, Kind: EventFinished, Step: result.Steps}
		res := result
		ev.Result = &res
		if err != nil {
			ev.Error = err.Error()
		}
		a.emit(ev)
	}()

	a.mem.Reset()
	obs, info, err := a.env.Reset(ctx, ResetOptions{Start: start})
	if err != nil {
		return result, fmt.Errorf("failed to reset environment: %w", err)
	}
	log.Info("Run started.", zap.String("objective", objective), zap.String("location", obs.Location))

	if err := a.record(ctx, result.RunID, 0, memory.RoleUser, objective); err != nil {
		return result, err
	}

	for step := 1; step <= a.opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			log.Info("Run cancelled between steps.", zap.Int("step", step))
			return result, err
		}

		done, err := a.step(ctx, log, &result, step, objective, &obs, &info)
		if err != nil {
			return result, fmt.Errorf("step %d: %w", step, err)
		}
		if done {
			log.Info("Run completed.", zap.Int("steps", result.Steps), zap.String("answer", result.Answer))
			return result, nil
		}
	}

	log.Warn("Step budget exhausted.", zap.Int("max_steps", a.opts.MaxSteps))
	return result, nil
}

func (a *Agent) step(ctx context.Context, log *zap.Logger, result *RunResult, step int, objective string, obs *Observation, info *Info) (bool, error) {
	stepCtx := context.WithoutCancel(ctx)
	if a.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, a.opts.StepTimeout)
		defer cancel()
	}

	reply, err := a.mind.Decide(stepCtx, Prompt{
		Objective:   objective,
		Observation: *obs,
		Memory:      a.mem.String(),
		Actions:     info.Actions,
	})
	if err != nil {
		return false, err
	}

	cmd := CommandFromReply(reply)
	agentMsg := cmd.String()
	if reply.Rationale != "" {
		agentMsg = reply.Rationale + "\n" + agentMsg
	}
	if err := a.record(stepCtx, result.RunID, step, memory.RoleAgent, agentMsg); err != nil {
		return false, err
	}

	location := obs.Location
	next, nextInfo, err := a.env.Step(stepCtx, cmd)
	if err != nil {
		return false, fmt.Errorf("environment failed on %s: %w", cmd.Name, err)
	}
	*obs, *info = next, nextInfo
	result.Steps = step

	entry := HistoryEntry{Step: step, Location: location, Command: cmd.String()}
	res := ActionResult{Success: true}
	if obs.LastResult != nil {
		res = *obs.LastResult
	}
	if !res.Success {
		entry.Error = res.Message
	}
	result.History = append(result.History, entry)
	log.Debug("Step executed.", zap.Int("step", step), zap.String("command", entry.Command),
		zap.Bool("success", res.Success), zap.String("code", string(res.Code)))

	if err := a.record(stepCtx, result.RunID, step, memory.RoleEnvironment, res.String()); err != nil {
		return false, err
	}

	if info.Done {
		result.Completed = true
		result.Answer = info.Answer
		return true, nil
	}
	return false, nil
}

// record appends to working memory, then archives and publishes. Archive
// failures are logged; working memory failures end the run.
func (a *Agent) record(ctx context.Context, runID string, step int, role memory.Role, content string) error {
	msg := memory.NewMessage(role, content)
	if err := a.mem.Insert(ctx, msg); err != nil {
		return fmt.Errorf("failed to update working memory: %w", err)
	}
	if a.opts.Archive != nil {
		if err := a.opts.Archive.Insert(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("Failed to archive message.", zap.String("run_id", runID), zap.Error(err))
		}
	}
	a.emit(Event{RunID: runID, Kind: EventMessage, Step: step, Message: &msg})
	return nil
}

func (a *Agent) emit(ev Event) {
	if a.opts.Observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	a.opts.Observer(ev)
}
