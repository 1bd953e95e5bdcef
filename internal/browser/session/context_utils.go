// internal/browser/session/context_utils.go
package session

import (
	"context"
	"errors"
)

// CombineContext returns a context derived from ctx1, which carries the CDP
// target, that is also done when ctx2 is done. A deadline on ctx2 is copied
// so that an expired operation reports context.DeadlineExceeded rather than
// a plain cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	if d, ok := ctx2.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combinedCtx, cancelDeadline = context.WithDeadline(combinedCtx, d)
		outer := cancel
		cancel = func() {
			cancelDeadline()
			outer()
		}
	}

	go func() {
		select {
		case <-ctx2.Done():
			// An expired ctx2 deadline fires on combinedCtx by itself.
			if !errors.Is(ctx2.Err(), context.DeadlineExceeded) {
				cancel()
			}
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
