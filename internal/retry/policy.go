package retry

import (
	"errors"
	"fmt"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds how often and how patiently a statement is retried.
type Policy struct {
	// MaxAttempts counts the first attempt. 1 disables retries.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// JitterFactor in [0, 1] randomizes each delay by up to that fraction.
	// It is applied in whole percent, rounded to nearest.
	JitterFactor float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		BaseDelay:    50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.2,
	}
}

// Validate reports whether p can drive an Executor.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base delay must be positive, got %s", p.BaseDelay))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, fmt.Errorf("max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay))
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		errs = append(errs, fmt.Errorf("jitter factor must be within [0, 1], got %g", p.JitterFactor))
	} else if p.JitterFactor > 0 && p.jitterPercent() == 0 {
		errs = append(errs, fmt.Errorf("jitter factor %g is below one percent", p.JitterFactor))
	}
	return errors.Join(errs...)
}

// Delay is the un-jittered wait after the given zero-based failed attempt:
// min(BaseDelay * 2^attempt, MaxDelay). The Executor's backoff is built
// from it, with jitter applied on top.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p Policy) jitterPercent() uint64 {
	return uint64(math.Round(p.JitterFactor * 100))
}

// backoff builds a fresh go-retry Backoff following Delay. Backoffs are
// stateful, so every call to the Executor gets its own.
func (p Policy) backoff() goretry.Backoff {
	attempt := 0
	var b goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
	if pct := p.jitterPercent(); pct > 0 {
		b = goretry.WithJitterPercent(pct, b)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}
