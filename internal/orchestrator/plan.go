// internal/orchestrator/plan.go
package orchestrator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-agent/internal/agent"
)

// TaskState is the lifecycle state of a planned task.
type TaskState string

const (
	StateOpen       TaskState = "open"
	StateInProgress TaskState = "in_progress"
	StateCompleted  TaskState = "completed"
	StateAbandoned  TaskState = "abandoned"
)

// Marker is the one-glyph state marker used when rendering a plan.
func (s TaskState) Marker() string {
	switch s {
	case StateCompleted:
		return "[x]"
	case StateAbandoned:
		return "[-]"
	case StateInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

// Finished reports whether the task will not be worked on again.
func (s TaskState) Finished() bool {
	return s == StateCompleted || s == StateAbandoned
}

// Task is one step of a plan, carried out by a single agent.
type Task struct {
	ID          string    `json:"id"`
	Goal        string    `json:"goal"`
	Description string    `json:"description"`
	State       TaskState `json:"state"`
	Assignee    string    `json:"assignee"`
	// Result is the assignee's answer or failure note once the task finished.
	Result string `json:"result,omitempty"`
}

func (t *Task) String() string {
	return fmt.Sprintf("%s %s [%s] %s", t.State.Marker(), t.ID, t.Assignee, t.Goal)
}

// Plan is an ordered task list, executed one task at a time.
type Plan struct {
	Tasks []*Task `json:"tasks"`
}

// Merge folds a newly proposed plan into p. An empty proposal keeps p. An
// empty p adopts the proposal. Otherwise the proposal replaces every task from
// the first unfinished one on; when all tasks are finished it is appended.
func (p *Plan) Merge(next Plan) {
	if len(next.Tasks) == 0 {
		return
	}
	if len(p.Tasks) == 0 {
		p.Tasks = next.Tasks
		return
	}
	cut := len(p.Tasks)
	for i, t := range p.Tasks {
		if !t.State.Finished() {
			cut = i
			break
		}
	}
	tasks := make([]*Task, 0, cut+len(next.Tasks))
	tasks = append(tasks, p.Tasks[:cut]...)
	p.Tasks = append(tasks, next.Tasks...)
}

// NextTask returns the first open task, or nil when none is left.
func (p *Plan) NextTask() *Task {
	for _, t := range p.Tasks {
		if t.State == StateOpen {
			return t
		}
	}
	return nil
}

// String renders one line per task.
func (p *Plan) String() string {
	var b strings.Builder
	for _, t := range p.Tasks {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParsePlan decodes a planner reply. Every proposed task starts open; a task
// without an id gets a generated one and an unknown assignee is an error.
func ParsePlan(raw string, known func(name string) bool) (Plan, error) {
	body, ok := agent.ExtractJSON(raw)
	if !ok {
		return Plan{}, &agent.ValidationError{Reason: "could not find any JSON in the planner response", Raw: raw}
	}
	var plan Plan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return Plan{}, &agent.ValidationError{Reason: "planner reply is not a valid plan", Raw: raw, Err: err}
	}

	tasks := plan.Tasks[:0]
	for _, t := range plan.Tasks {
		if t == nil {
			continue
		}
		t.Goal = strings.TrimSpace(t.Goal)
		if t.Goal == "" {
			return Plan{}, &agent.ValidationError{Reason: "planned task has no goal", Raw: raw}
		}
		t.Assignee = strings.ToLower(strings.TrimSpace(t.Assignee))
		if !known(t.Assignee) {
			return Plan{}, &agent.ValidationError{
				Reason: fmt.Sprintf("task %q is assigned to unknown agent %q", t.Goal, t.Assignee), Raw: raw}
		}
		if strings.TrimSpace(t.ID) == "" {
			t.ID = uuid.NewString()[:8]
		}
		t.State, t.Result = StateOpen, ""
		tasks = append(tasks, t)
	}
	plan.Tasks = tasks
	return plan, nil
}
