package concurrent

import "context"

type Limiter interface {
	// Acquire takes one working credential, waiting until one is free or ctx is done.
	Acquire(ctx context.Context) error
	// Release returns one working credential.
	Release()
	// InUse returns the number of credentials currently taken.
	InUse() int
}

type limiter struct {
	working chan struct{}
}

// NewLimiter returns a limiter allowing maxConcurrency holders at once.
// A non-positive maxConcurrency means unlimited.
func NewLimiter(maxConcurrency int) Limiter {
	if maxConcurrency <= 0 {
		return unlimited{}
	}
	return &limiter{
		working: make(chan struct{}, maxConcurrency),
	}
}

func (in *limiter) Acquire(ctx context.Context) error {
	select {
	case in.working <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *limiter) Release() {
	select {
	case <-in.working:
	default:
	}
}

func (in *limiter) InUse() int {
	return len(in.working)
}

type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) error { return ctx.Err() }

func (unlimited) Release() {}

func (unlimited) InUse() int { return 0 }
