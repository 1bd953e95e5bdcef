// File: internal/mcp/runs.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/agent"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("another run is in progress")
	// ErrUnknownEnvironment is returned for an environment with no runner.
	ErrUnknownEnvironment = errors.New("unknown environment")
)

// RunFunc executes one agent run, reporting transcript events to observer.
type RunFunc func(ctx context.Context, objective, start string, observer agent.Observer) (agent.RunResult, error)

// Run states.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// RunJob is the state of a submitted run.
type RunJob struct {
	ID          string           `json:"id"`
	Objective   string           `json:"objective"`
	Environment string           `json:"environment"`
	Start       string           `json:"start,omitempty"`
	Status      string           `json:"status"`
	Steps       int              `json:"steps"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Result      *agent.RunResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// RunRegistry tracks active and recent runs thread-safely in memory.
type RunRegistry struct {
	jobs   map[string]*RunJob
	active string
	mu     sync.RWMutex
}

// GetJob returns a snapshot of the job with id.
func (r *RunRegistry) GetJob(id string) (RunJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return RunJob{}, false
	}
	return *job, true
}

// Active returns the id of the running job, if any.
func (r *RunRegistry) Active() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != ""
}

// claim registers job as the active one unless another is active.
func (r *RunRegistry) claim(job *RunJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != "" {
		return ErrBusy
	}
	r.jobs[job.ID] = job
	r.active = job.ID
	return nil
}

func (r *RunRegistry) update(id string, fn func(*RunJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// finish applies fn to the job and frees the active slot in one step.
func (r *RunRegistry) finish(id string, fn func(*RunJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
	if r.active == id {
		r.active = ""
	}
}

// RunService launches agent runs in the background, one at a time, and
// forwards their transcript to the hub.
type RunService struct {
	log      *zap.Logger
	registry *RunRegistry
	runners  map[string]RunFunc
	hub      *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunService creates a RunService over the given runners, keyed by
// environment name.
func NewRunService(logger *zap.Logger, runners map[string]RunFunc, hub *Hub) *RunService {
	ctx, cancel := context.WithCancel(context.Background())
	normalized := make(map[string]RunFunc, len(runners))
	for name, fn := range runners {
		normalized[strings.ToLower(name)] = fn
	}
	return &RunService{
		log:      logger.Named("mcp_run_service"),
		registry: &RunRegistry{jobs: make(map[string]*RunJob)},
		runners:  normalized,
		hub:      hub,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the job registry.
func (s *RunService) Registry() *RunRegistry { return s.registry }

// Environments lists the registered environment names.
func (s *RunService) Environments() []string {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartRun validates req and executes it asynchronously.
func (s *RunService) StartRun(req RunRequest) (RunJob, error) {
	env := strings.ToLower(strings.TrimSpace(req.Environment))
	run, ok := s.runners[env]
	if !ok {
		return RunJob{}, fmt.Errorf("%w: %q", ErrUnknownEnvironment, req.Environment)
	}
	if err := s.ctx.Err(); err != nil {
		return RunJob{}, fmt.Errorf("run service is shutting down: %w", err)
	}

	job := &RunJob{
		ID:          uuid.NewString(),
		Objective:   req.Objective,
		Environment: env,
		Start:       req.Start,
		Status:      StatusPending,
		StartedAt:   time.Now(),
	}
	if err := s.registry.claim(job); err != nil {
		return RunJob{}, err
	}
	snapshot := *job

	s.log.Info("Run accepted.", zap.String("job_id", job.ID), zap.String("environment", env))
	s.wg.Add(1)
	go s.execute(run, snapshot)
	return snapshot, nil
}

func (s *RunService) execute(run RunFunc, job RunJob) {
	defer s.wg.Done()

	s.updateJobStatus(job.ID, StatusRunning, nil)
	observer := func(ev agent.Event) {
		if ev.Kind == agent.EventMessage {
			s.registry.update(job.ID, func(j *RunJob) { j.Steps = ev.Step })
		}
		s.hub.Publish(ev)
	}

	result, err := run(s.ctx, job.Objective, job.Start, observer)
	s.registry.update(job.ID, func(j *RunJob) {
		res := result
		j.Result = &res
		j.Steps = result.Steps
	})
	if err != nil {
		s.updateJobStatus(job.ID, StatusFailed, err)
		return
	}
	s.updateJobStatus(job.ID, StatusCompleted, nil)
}

func (s *RunService) updateJobStatus(id, status string, err error) {
	apply := func(j *RunJob) {
		j.Status = status
		if err != nil {
			j.Error = err.Error()
		}
	}
	if status == StatusCompleted || status == StatusFailed {
		s.registry.finish(id, func(j *RunJob) {
			apply(j)
			now := time.Now()
			j.FinishedAt = &now
		})
	} else {
		s.registry.update(id, apply)
	}
	log := s.log.With(zap.String("job_id", id), zap.String("status", status))
	if err != nil {
		log.Warn("Run failed.", zap.Error(err))
		return
	}
	log.Info("Run status updated.")
}

// Shutdown cancels the active run and waits for it to return or for ctx to
// expire.
func (s *RunService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the active run: %w", ctx.Err())
	}
}
