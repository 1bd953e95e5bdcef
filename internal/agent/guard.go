// internal/agent/guard.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
)

// TimeoutMessage is the message of the soft success reported for a timed out
// action.
const TimeoutMessage = "Action timed out; the page may still be changing."

// Guard wraps h so that failures become results the model can react to.
// Timeouts become a soft success after onTimeout (may be nil) has run; element,
// interaction and target errors keep their codes and anything else is an
// execution failure carrying the driver message. Only a closed session or a
// cancelled run is returned as an error.
func Guard[T any](h Handler[T], onTimeout func(ctx context.Context, target T) error) Handler[T] {
	return func(ctx context.Context, target T, args Args) (ActionResult, error) {
		res, err := h(ctx, target, args)
		if err == nil {
			return res, nil
		}
		if r, ok := Recover(err); ok {
			if errors.Is(err, ErrTimeout) && onTimeout != nil {
				// The step context may already be spent.
				stopCtx := context.WithoutCancel(ctx)
				if stopErr := onTimeout(stopCtx, target); stopErr != nil {
					return ActionResult{}, fmt.Errorf("failed to stop after timeout: %w", stopErr)
				}
			}
			return r, nil
		}
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) {
			return ActionResult{}, err
		}
		return Failed(ErrCodeExecutionFailure, fmt.Sprintf("Action failed: %v.", strings.TrimSuffix(err.Error(), "."))), nil
	}
}

// Recover maps a classified action error to its result. It reports false
// for errors it does not recognize.
func Recover(err error) (ActionResult, bool) {
	var (
		ie *InteractionError
		ee *ElementError
	)
	switch {
	case errors.Is(err, ErrTimeout):
		return Succeeded(TimeoutMessage), true

	case errors.As(err, &ie):
		return Failed(ErrCodeInteraction, fmt.Sprintf("Element with id=%d %s.", ie.ID, ie.Reason)), true

	case errors.As(err, &ee):
		switch {
		case errors.Is(ee.Err, dom.ErrStaleElement):
			return Failed(ErrCodeElement,
				fmt.Sprintf("Element with id=%d is stale; the page changed since it was observed.", ee.ID)), true
		case errors.Is(ee.Err, dom.ErrNotAddressable):
			return Failed(ErrCodeElement, fmt.Sprintf("Element with id=%d is text and cannot be acted on.", ee.ID)), true
		default:
			return Failed(ErrCodeElement, fmt.Sprintf("Cannot find element with id=%d.", ee.ID)), true
		}

	case errors.Is(err, ErrInvalidTarget):
		return Failed(ErrCodeInvalidTarget, fmt.Sprintf("Cannot use target (%v).", err)), true
	}
	return ActionResult{}, false
}
