// Package retry provides the single retry policy used for all ledger reads
// and writes and for relay submissions. Call sites configure attempts and
// delays but share the same backoff behavior.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a parameterized retry policy with exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of tries, first call included.
	MaxAttempts uint64
	// BaseDelay is the initial delay between attempts.
	BaseDelay time.Duration
	// MaxDelay caps the growth of the delay. Zero means no cap.
	MaxDelay time.Duration
	// Jitter enables randomization of the delays.
	Jitter bool
}

// DefaultPolicy is used where a call site has no specific requirements.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      true,
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is canceled. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	if p.MaxDelay > 0 {
		bo.MaxInterval = p.MaxDelay
	}
	if !p.Jitter {
		bo.RandomizationFactor = 0
	}
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.Retry(fn,
		backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx))
}

// Permanent marks err so that Do stops retrying and returns it verbatim.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
