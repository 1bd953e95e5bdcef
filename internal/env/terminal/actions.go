// internal/env/terminal/actions.go
package terminal

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/internal/agent"
)

// DefaultRegistry returns the terminal command set.
func DefaultRegistry() (*agent.Registry[*Env], error) {
	return agent.NewRegistry(Actions()...)
}

// Actions lists the terminal commands.
func Actions() []agent.ActionSpec[*Env] {
	return []agent.ActionSpec[*Env]{
		{
			Name:        "exec",
			Description: "Type a bash command and press Enter. One command at a time.",
			Params:      []agent.ParamSpec{{Name: "command", Type: agent.ParamString, Required: true}},
			Handler:     execCommand,
		},
		{
			Name:        "ctrl",
			Description: "Send a control key, e.g. c for CTRL-C.",
			Params: []agent.ParamSpec{{Name: "key", Type: agent.ParamString, Required: true,
				Description: "a single letter from a to z"}},
			Handler: ctrl,
		},
		{
			Name:        "hold",
			Description: "Send nothing and wait for more output.",
			Handler:     hold,
		},
		{
			Name:        "complete",
			Description: "Declare the objective achieved.",
			Params: []agent.ParamSpec{{Name: "answer", Type: agent.ParamString,
				Description: "the answer or any comments"}},
			Handler: complete,
		},
	}
}

// ControlChar maps a letter to its control character, 'a' to 0x01.
func ControlChar(key string) (byte, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if len(key) != 1 || key[0] < 'a' || key[0] > 'z' {
		return 0, false
	}
	return key[0] - 'a' + 1, true
}

func shellGone(err error) agent.ActionResult {
	return agent.Failed(agent.ErrCodeExecutionFailure,
		fmt.Sprintf("The shell is not accepting input (%v). Reset to start a new one.", err))
}

func execCommand(_ context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	command, _ := args.String("command")
	if err := e.send(strings.TrimSpace(command) + "\n"); err != nil {
		return shellGone(err), nil
	}
	return agent.Succeeded(""), nil
}

func ctrl(_ context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	key, _ := args.String("key")
	ch, ok := ControlChar(key)
	if !ok {
		return agent.Failed(agent.ErrCodeDispatch,
			fmt.Sprintf("Invalid control key %q; use a single letter from a to z.", key)), nil
	}
	if err := e.send(string([]byte{ch})); err != nil {
		return shellGone(err), nil
	}
	return agent.Succeeded(""), nil
}

func hold(context.Context, *Env, agent.Args) (agent.ActionResult, error) {
	return agent.Succeeded(""), nil
}

func complete(_ context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	answer, _ := args.String("answer")
	e.done, e.answer = true, answer
	return agent.Succeeded("Objective marked complete."), nil
}
