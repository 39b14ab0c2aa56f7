package sampling

import (
	"context"
	"time"
)

// AcquirePolicy is how one tick obtains a fix.
type AcquirePolicy struct {
	Timeout    time.Duration
	MaximumAge time.Duration
}

// Attempt is the typed result of one tick.
type Attempt struct {
	Fix Fix
	// Downgraded is set when the fix came from the low accuracy retry.
	Downgraded bool
	Err        *AcquireError
}

// Acquire runs one tick: a high accuracy attempt, then one low accuracy retry
// unless the first failure was a permission denial or an unsupported device.
// Each attempt is bounded by the policy timeout even if `src` ignores ctx.
func (p AcquirePolicy) Acquire(ctx context.Context, clock Clock, src Source) Attempt {
	fix, err := p.attempt(ctx, clock, src, true)
	if err == nil {
		return Attempt{Fix: fix}
	}
	if !err.Kind.retryable() || ctx.Err() != nil {
		return Attempt{Err: err}
	}

	fix, err = p.attempt(ctx, clock, src, false)
	if err != nil {
		return Attempt{Downgraded: true, Err: err}
	}
	return Attempt{Fix: fix, Downgraded: true}
}

func (p AcquirePolicy) attempt(ctx context.Context, clock Clock, src Source, high bool) (Fix, *AcquireError) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		fix Fix
		err error
	}
	ch := make(chan result, 1)
	go func() {
		fix, err := src.Acquire(ctx, Request{HighAccuracy: high, Timeout: p.Timeout, MaximumAge: p.MaximumAge})
		ch <- result{fix, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return Fix{}, asAcquireError(res.err)
		}
		if res.fix.CapturedAt.IsZero() {
			res.fix.CapturedAt = clock.Now().UTC()
		}
		return res.fix, nil
	case <-clock.After(p.Timeout):
		return Fix{}, NewAcquireError(KindTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return Fix{}, NewAcquireError(KindUnavailable, ctx.Err())
	}
}
