package browser

import (
	"context"
	"fmt"
	"time"
)

// PollInterval is the default interval between condition checks.
var PollInterval = 250 * time.Millisecond

// WaitUntil polls cond until it returns true, the timeout elapses or ctx is
// done. The condition is always evaluated at least once.
func WaitUntil(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
}

// WaitFor polls scope until loc resolves.
func WaitFor(ctx context.Context, scope Scope, loc Locator, timeout time.Duration) (Element, error) {
	var found Element
	ok := WaitUntil(ctx, timeout, func() bool {
		el, err := scope.FindOne(loc)
		if err != nil {
			return false
		}
		found = el
		return true
	})
	if !ok {
		return nil, fmt.Errorf("wait for %s after %s: %w", loc, timeout, ErrNotFound)
	}
	return found, nil
}

// WaitGone polls scope until loc no longer resolves.
func WaitGone(ctx context.Context, scope Scope, loc Locator, timeout time.Duration) bool {
	return WaitUntil(ctx, timeout, func() bool {
		_, err := scope.FindOne(loc)
		return err != nil
	})
}
