// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
)

// ErrorCode is a string type used for structured error reporting on action
// results. Using a custom type ensures that only predefined constants can be
// used where an ErrorCode is expected.
type ErrorCode string

const (
	// -- Fatal to the run --
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// -- Reported back to the model --
	ErrCodeDispatch         ErrorCode = "DISPATCH_ERROR"
	ErrCodeElement          ErrorCode = "ELEMENT_ERROR"
	ErrCodeInteraction      ErrorCode = "INTERACTION_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInvalidTarget    ErrorCode = "INVALID_TARGET"
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
)

var (
	// ErrTimeout marks an action that did not finish in time.
	ErrTimeout = errors.New("action timed out")
	// ErrInvalidTarget marks a navigation target that cannot be used.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrSessionClosed marks a driver that can no longer act at all. It ends
	// the run.
	ErrSessionClosed = errors.New("browser session closed")
)

// ValidationError means the model produced a reply that does not conform to
// the reply shape. It ends the run.
type ValidationError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid model reply: %s: %v", e.Reason, e.Err)
	}
	return "invalid model reply: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InteractionReason says why a present element could not be acted on.
type InteractionReason string

const (
	ReasonObscured        InteractionReason = "is obscured by another element"
	ReasonNotInteractable InteractionReason = "is not interactable"
	ReasonNotVisible      InteractionReason = "is not visible"
)

// InteractionError is returned when an element exists but the action on it
// was refused by the page.
type InteractionError struct {
	ID     int
	Reason InteractionReason
	Err    error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("element with id=%d %s", e.ID, e.Reason)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// ElementError ties an element resolution failure to the id the model used.
type ElementError struct {
	ID  int
	Err error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element id=%d: %v", e.ID, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// ParseBrowserError classifies a raw driver error raised while acting on the
// element with the given id (or -1 when no element is involved). Errors it
// does not recognize are returned unchanged.
func ParseBrowserError(err error, id int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "target closed") || strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "invalid context") || strings.Contains(msg, "channel closed") ||
		strings.Contains(msg, "websocket: close"):
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(msg, "net::err") || strings.Contains(msg, "invalid url") ||
		strings.Contains(msg, "cannot navigate"):
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if id < 0 {
		return err
	}

	switch {
	case strings.Contains(msg, "obscured") || strings.Contains(msg, "intercept"):
		return &InteractionError{ID: id, Reason: ReasonObscured, Err: err}
	case strings.Contains(msg, "not interactable") || strings.Contains(msg, "zero size"):
		return &InteractionError{ID: id, Reason: ReasonNotInteractable, Err: err}
	case strings.Contains(msg, "not visible"):
		return &InteractionError{ID: id, Reason: ReasonNotVisible, Err: err}
	case strings.Contains(msg, "no element found") || strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "selector"):
		// The locator was valid when the page was observed.
		return &ElementError{ID: id, Err: fmt.Errorf("%w: %v", dom.ErrStaleElement, err)}
	}
	return err
}
