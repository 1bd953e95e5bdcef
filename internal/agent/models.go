// internal/agent/models.go
package agent

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
)

// Command is a parsed model reply addressed to an environment.
type Command struct {
	Name       string                   `json:"name"`
	Parameters map[string]schemas.Value `json:"parameters,omitempty"`
}

// CommandFromReply extracts the command part of a reply.
func CommandFromReply(r schemas.Reply) Command {
	return Command{Name: r.Command, Parameters: r.Parameters}
}

// String renders the command as name(k=v, ...) with keys sorted.
func (c Command) String() string {
	if len(c.Parameters) == 0 {
		return c.Name + "()"
	}
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		v := c.Parameters[k]
		if v.Kind() == schemas.KindString {
			b.WriteString(`"` + v.StringVal() + `"`)
		} else {
			b.WriteString(v.String())
		}
	}
	b.WriteByte(')')
	return b.String()
}

// ActionResult is the outcome of one dispatched command. It is reported back
// to the model on the next turn.
type ActionResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Code    ErrorCode `json:"code,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message string) ActionResult {
	return ActionResult{Success: true, Message: message}
}

// Failed builds a failed result carrying code.
func Failed(code ErrorCode, message string) ActionResult {
	return ActionResult{Success: false, Message: message, Code: code}
}

func (r ActionResult) String() string {
	if r.Success {
		if r.Message == "" {
			return "SUCCESS"
		}
		return "SUCCESS: " + r.Message
	}
	if r.Code != "" {
		return "FAILURE [" + string(r.Code) + "]: " + r.Message
	}
	return "FAILURE: " + r.Message
}

// Observation is what an environment shows the model after a reset or step.
type Observation struct {
	// Location is the current URL for the browser, the working directory
	// for the terminal.
	Location string `json:"location"`
	// Position is an environment specific descriptor, for instance the
	// browser scroll status.
	Position   map[string]float64 `json:"position,omitempty"`
	Text       string             `json:"text"`
	LastResult *ActionResult      `json:"last_result,omitempty"`
	// Screenshot is an opaque base64 image, empty when not captured.
	Screenshot string `json:"screenshot,omitempty"`
}

// Info carries the metadata of a reset or step that is not shown as page
// content: the action catalog and whether the episode has ended.
type Info struct {
	Namespace schemas.Namespace `json:"namespace"`
	Actions   []ActionInfo      `json:"actions"`
	Done      bool              `json:"done"`
	Answer    string            `json:"answer,omitempty"`
}

// ResetOptions configure the start of an episode.
type ResetOptions struct {
	// Start is the start URL for the browser, the working directory for
	// the terminal. Empty means the environment default.
	Start string
}

// Environment is a world the agent can observe and act upon.
type Environment interface {
	// Reset starts a new episode.
	Reset(ctx context.Context, opts ResetOptions) (Observation, Info, error)
	// Step executes one command. Failures of the command itself are
	// reported in Observation.LastResult; a returned error is fatal.
	Step(ctx context.Context, cmd Command) (Observation, Info, error)
	// Close releases the environment's resources.
	Close() error
}

// HistoryEntry is one executed step as the run summary shows it.
type HistoryEntry struct {
	Step     int    `json:"step"`
	Location string `json:"location"`
	Command  string `json:"command"`
	Error    string `json:"error,omitempty"`
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID     string         `json:"run_id"`
	Completed bool           `json:"completed"`
	Answer    string         `json:"answer,omitempty"`
	Steps     int            `json:"steps"`
	History   []HistoryEntry `json:"history"`
}

// FormatHistory renders the history the way the REPL prints it.
func FormatHistory(history []HistoryEntry) string {
	var b strings.Builder
	for i, h := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(h.Step))
		b.WriteString(". \nURL: ")
		b.WriteString(h.Location)
		b.WriteString("\nCOMMAND: ")
		b.WriteString(h.Command)
		if h.Error != "" {
			b.WriteString("\nERROR: ")
			b.WriteString(h.Error)
		}
	}
	return b.String()
}
