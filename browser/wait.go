package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPollInterval is used by a Waiter with no poll interval set.
const DefaultPollInterval = 250 * time.Millisecond

// Condition is a DOM predicate evaluated repeatedly by a Waiter. Check
// returns the element the condition matched once it holds.
type Condition struct {
	Name  string
	Check func(ctx context.Context, f Finder) (Element, bool, error)
}

// Present holds once an element matching loc exists.
func Present(loc Locator) Condition {
	return Condition{
		Name: "presence of " + loc.String(),
		Check: func(ctx context.Context, f Finder) (Element, bool, error) {
			el, err := f.Find(ctx, loc)
			if err != nil {
				return nil, false, err
			}
			return el, true, nil
		},
	}
}

// Clickable holds once an element matching loc is visible and enabled.
func Clickable(loc Locator) Condition {
	return Condition{
		Name: "clickability of " + loc.String(),
		Check: func(ctx context.Context, f Finder) (Element, bool, error) {
			el, err := f.Find(ctx, loc)
			if err != nil {
				return nil, false, err
			}
			ok, err := el.Clickable(ctx)
			if err != nil || !ok {
				return nil, false, err
			}
			return el, true, nil
		},
	}
}

// AttributeEquals holds once the attribute of the element matching loc,
// trimmed, equals want.
func AttributeEquals(loc Locator, attr, want string) Condition {
	return Condition{
		Name: fmt.Sprintf("%s of %s to equal %q", attr, loc, want),
		Check: func(ctx context.Context, f Finder) (Element, bool, error) {
			el, err := f.Find(ctx, loc)
			if err != nil {
				return nil, false, err
			}
			value, err := el.Attribute(ctx, attr)
			if err != nil {
				return nil, false, err
			}
			if strings.TrimSpace(value) != want {
				return nil, false, nil
			}
			return el, true, nil
		},
	}
}

// Waiter polls conditions against a Finder.
type Waiter struct {
	Finder Finder
	Poll   time.Duration
}

// Until blocks until cond holds, timeout elapses or ctx is done. Errors from
// individual checks (missing or stale elements) count as "not yet". On
// timeout the returned error wraps ErrWaitTimeout and the last check error.
func (w Waiter) Until(ctx context.Context, timeout time.Duration, cond Condition) (Element, error) {
	poll := w.Poll
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		el, ok, err := cond.Check(ctx, w.Finder)
		if ok {
			return el, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return nil, fmt.Errorf("%w after %s waiting for %s: %v", ErrWaitTimeout, timeout, cond.Name, lastErr)
			}
			return nil, fmt.Errorf("%w after %s waiting for %s", ErrWaitTimeout, timeout, cond.Name)
		}

		sleep := poll
		if remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
