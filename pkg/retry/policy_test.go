package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Class
	}{
		{"transient provider", domain.ErrTransientProvider, retry.ClassTransient},
		{"wrapped transient", fmt.Errorf("call failed: %w", domain.ErrTransientProvider), retry.ClassTransient},
		{"deadline exceeded", context.DeadlineExceeded, retry.ClassTransient},
		{"validation", domain.ErrValidation, retry.ClassPermanent},
		{"wrapped validation", fmt.Errorf("bad input: %w", domain.ErrValidation), retry.ClassPermanent},
		{"node error wrapping", &domain.NodeError{NodeID: "n", Attempt: 1, Err: domain.ErrValidation}, retry.ClassPermanent},
		{"uncategorized", errors.New("something odd"), retry.ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	p := retry.NewPolicy()

	// Transient: retried until the attempt ceiling.
	assert.True(t, p.Retryable(retry.ClassTransient, 1))
	assert.True(t, p.Retryable(retry.ClassTransient, 2))
	assert.False(t, p.Retryable(retry.ClassTransient, 3))

	// Unknown: exactly one retry.
	assert.True(t, p.Retryable(retry.ClassUnknown, 1))
	assert.False(t, p.Retryable(retry.ClassUnknown, 2))

	// Permanent: never.
	assert.False(t, p.Retryable(retry.ClassPermanent, 1))
}

func TestRetryableCustomCeiling(t *testing.T) {
	p := retry.NewPolicy(retry.WithMaxAttempts(5))
	assert.True(t, p.Retryable(retry.ClassTransient, 4))
	assert.False(t, p.Retryable(retry.ClassTransient, 5))
	assert.Equal(t, 5, p.MaxAttempts())
}

func TestSequenceGrowsWithinBounds(t *testing.T) {
	p := retry.NewPolicy(
		retry.WithInitialInterval(10*time.Millisecond),
		retry.WithMaxInterval(100*time.Millisecond),
	)
	seq := p.NewSequence()

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := seq.Next()
		assert.Greater(t, d, time.Duration(0))
		// Jittered exponential backoff: bounded above by max interval plus
		// its randomization window.
		assert.LessOrEqual(t, d, 200*time.Millisecond)
		if d > prev {
			prev = d
		}
	}
	assert.Greater(t, prev, 10*time.Millisecond, "delays should grow beyond the initial interval")
}

func TestSequencesAreIndependent(t *testing.T) {
	p := retry.NewPolicy(retry.WithInitialInterval(10 * time.Millisecond))

	s1 := p.NewSequence()
	for i := 0; i < 5; i++ {
		s1.Next()
	}

	// A fresh sequence starts near the initial interval regardless of s1.
	s2 := p.NewSequence()
	d := s2.Next()
	assert.Less(t, d, 50*time.Millisecond)
}
