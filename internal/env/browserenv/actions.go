package browserenv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-agent/internal/browser/session"
)

var (
	clickable = map[dom.Tag]bool{
		dom.TagLink: true, dom.TagButton: true, dom.TagCheckbox: true, dom.TagRadio: true, dom.TagSelect: true,
	}
	fillable = map[dom.Tag]bool{
		dom.TagTextInput: true, dom.TagDatePicker: true, dom.TagSelect: true,
	}
)

// DefaultRegistry returns the browser command set.
func DefaultRegistry() (*agent.Registry[*Env], error) {
	return agent.NewRegistry(Actions()...)
}

// Actions lists the browser commands, each guarded so that timeouts stop the
// page load and element failures come back as results.
func Actions() []agent.ActionSpec[*Env] {
	specs := []agent.ActionSpec[*Env]{
		{
			Name:        "visit",
			Description: "Open a URL.",
			Params:      []agent.ParamSpec{{Name: "url", Type: agent.ParamString, Required: true}},
			Handler:     visit,
		},
		{
			Name:        "scroll",
			Description: "Scroll the page one screen up or down.",
			Params: []agent.ParamSpec{{Name: "direction", Type: agent.ParamString, Required: true,
				Description: "up or down"}},
			Handler: scroll,
		},
		{
			Name:        "click",
			Description: "Click a link, button, checkbox, radio or select.",
			Params:      []agent.ParamSpec{{Name: "id", Type: agent.ParamInt, Required: true}},
			Handler:     click,
		},
		{
			Name:        "type",
			Description: "Type text into an input, date picker or select, optionally pressing Enter afterwards.",
			Params: []agent.ParamSpec{
				{Name: "id", Type: agent.ParamInt, Required: true},
				{Name: "text", Type: agent.ParamString, Required: true},
				{Name: "submit", Type: agent.ParamBool},
			},
			Handler: typeText,
		},
		{Name: "back", Description: "Go back to the previous page.", Handler: back},
		{Name: "forward", Description: "Go forward to the next page.", Handler: forward},
		{
			Name:        "complete",
			Description: "Declare the objective achieved.",
			Params: []agent.ParamSpec{{Name: "answer", Type: agent.ParamString,
				Description: "the answer or any comments"}},
			Handler: complete,
		},
	}
	for i := range specs {
		specs[i].Handler = agent.Guard(specs[i].Handler, stopLoading)
	}
	return specs
}

func stopLoading(ctx context.Context, e *Env) error {
	return e.page.StopLoading(ctx)
}

func visit(ctx context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	raw, _ := args.String("url")
	target := strings.TrimSpace(raw)
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	if !validWebURL(target) {
		return agent.Failed(agent.ErrCodeInvalidTarget, fmt.Sprintf("Invalid URL %q.", raw)), nil
	}
	if err := e.page.Navigate(ctx, target); err != nil {
		return agent.ActionResult{}, agent.ParseBrowserError(err, -1)
	}
	return agent.Succeeded(""), nil
}

func scroll(ctx context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	dir, _ := args.String("direction")
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir != "up" && dir != "down" {
		return agent.Failed(agent.ErrCodeExecutionFailure,
			fmt.Sprintf("Invalid scroll direction %q; use up or down.", dir)), nil
	}
	if err := e.page.Scroll(ctx, dir); err != nil {
		return agent.ActionResult{}, agent.ParseBrowserError(err, -1)
	}
	return agent.Succeeded(""), nil
}

func click(ctx context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	id, _ := args.Int("id")
	h, err := e.lookup(id)
	if err != nil {
		return agent.ActionResult{}, err
	}
	if !clickable[h.Tag] {
		return agent.Failed(agent.ErrCodeElement, fmt.Sprintf("Element with id=%d is not clickable.", id)), nil
	}
	if err := e.page.Click(ctx, h.Locator); err != nil {
		return agent.ActionResult{}, agent.ParseBrowserError(err, id)
	}
	return agent.Succeeded(""), nil
}

func typeText(ctx context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	id, _ := args.Int("id")
	text, _ := args.String("text")
	submit, _ := args.Bool("submit")

	h, err := e.lookup(id)
	if err != nil {
		return agent.ActionResult{}, err
	}
	if !fillable[h.Tag] {
		return agent.Failed(agent.ErrCodeElement, fmt.Sprintf("Element with id=%d is not fillable.", id)), nil
	}
	if err := e.page.Type(ctx, h.Locator, text, submit); err != nil {
		if errors.Is(err, session.ErrNoSuchOption) {
			return agent.Failed(agent.ErrCodeExecutionFailure,
				fmt.Sprintf("Element with id=%d has no option %q.", id, text)), nil
		}
		return agent.ActionResult{}, agent.ParseBrowserError(err, id)
	}
	return agent.Succeeded(""), nil
}

// historyStep runs a back or forward move. A move with no history entry is
// a failed result, not a fatal error.
func historyStep(ctx context.Context, move func(context.Context) error, what string) (agent.ActionResult, error) {
	if err := move(ctx); err != nil {
		classified := agent.ParseBrowserError(err, -1)
		if _, ok := agent.Recover(classified); ok || errors.Is(classified, agent.ErrSessionClosed) {
			return agent.ActionResult{}, classified
		}
		return agent.Failed(agent.ErrCodeExecutionFailure, fmt.Sprintf("Cannot go %s: %v.", what, err)), nil
	}
	return agent.Succeeded(""), nil
}

func back(ctx context.Context, e *Env, _ agent.Args) (agent.ActionResult, error) {
	return historyStep(ctx, e.page.Back, "back")
}

func forward(ctx context.Context, e *Env, _ agent.Args) (agent.ActionResult, error) {
	return historyStep(ctx, e.page.Forward, "forward")
}

func complete(_ context.Context, e *Env, args agent.Args) (agent.ActionResult, error) {
	answer, _ := args.String("answer")
	e.done, e.answer = true, answer
	return agent.Succeeded("Objective marked complete."), nil
}
