package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds transient retries (the first attempt included).
const DefaultMaxAttempts = 3

// Policy decides whether a failed attempt is retried and how long to wait
// before the next one. A Policy is immutable after construction; per-node
// backoff state lives in the Sequence it mints.
type Policy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithMaxAttempts sets the transient retry ceiling (attempts, not retries).
func WithMaxAttempts(n int) PolicyOption {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.initialInterval = d
		}
	}
}

// WithMaxInterval caps the backoff delay.
func WithMaxInterval(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.maxInterval = d
		}
	}
}

// NewPolicy creates a retry policy with exponential backoff defaults.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the transient attempt ceiling.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Retryable reports whether another attempt is allowed after a failure of the
// given class on the given attempt number (1-based).
func (p *Policy) Retryable(class Class, attempt int) bool {
	switch class {
	case ClassTransient:
		return attempt < p.maxAttempts
	case ClassUnknown:
		return attempt < 2
	default:
		return false
	}
}

// Sequence holds the backoff state for one node's attempts within one
// execution. Delays grow exponentially with jitter.
type Sequence struct {
	b backoff.BackOff
}

// NewSequence mints a fresh backoff sequence.
func (p *Policy) NewSequence() *Sequence {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	eb.MaxInterval = p.maxInterval
	eb.MaxElapsedTime = 0 // attempts are bounded by Retryable, not wall time
	eb.Reset()
	return &Sequence{b: eb}
}

// Next returns the delay before the next attempt.
func (s *Sequence) Next() time.Duration {
	return s.b.NextBackOff()
}
