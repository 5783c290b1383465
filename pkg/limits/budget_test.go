package limits_test

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/limits"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		cfg       limits.Config
		wantCalls int
	}{
		{
			name: "known limit with defaults",
			cfg: limits.Config{
				Limit: limits.ProviderRateLimit{RequestsPerMinute: 100},
			},
			wantCalls: 80, // floor(100 * 0.8 / 1)
		},
		{
			name: "shared across graphs",
			cfg: limits.Config{
				Limit:            limits.ProviderRateLimit{RequestsPerMinute: 100},
				SafetyMargin:     0.5,
				ConcurrentGraphs: 4,
			},
			wantCalls: 12, // floor(100 * 0.5 / 4)
		},
		{
			name: "sixty per minute shared by two graphs",
			cfg: limits.Config{
				Limit:            limits.ProviderRateLimit{RequestsPerMinute: 60},
				SafetyMargin:     0.8,
				ConcurrentGraphs: 2,
			},
			wantCalls: 24, // floor(60 * 0.8 / 2)
		},
		{
			name: "result floors at one",
			cfg: limits.Config{
				Limit:            limits.ProviderRateLimit{RequestsPerMinute: 2},
				SafetyMargin:     0.1,
				ConcurrentGraphs: 10,
			},
			wantCalls: 1,
		},
		{
			name:      "unknown limit degrades to one",
			cfg:       limits.Config{},
			wantCalls: 1,
		},
		{
			name: "out-of-range margin falls back to default",
			cfg: limits.Config{
				Limit:        limits.ProviderRateLimit{RequestsPerMinute: 100},
				SafetyMargin: 1.5,
			},
			wantCalls: 80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := limits.Compute(tt.cfg)
			assert.Equal(t, tt.wantCalls, b.MaxParallelCalls)
			assert.GreaterOrEqual(t, b.MaxParallelNodes, b.MaxParallelCalls,
				"node ceiling must never be tighter than the call ceiling")
			assert.Greater(t, b.CallsPerSecond, 0.0)
		})
	}
}

func TestComputeNeverExceedsCeiling(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		cfg := limits.Config{
			Limit:            limits.ProviderRateLimit{RequestsPerMinute: rnd.Intn(10000)},
			SafetyMargin:     rnd.Float64() * 1.2, // occasionally out of range
			ConcurrentGraphs: rnd.Intn(20),
		}
		b := limits.Compute(cfg)

		require.GreaterOrEqual(t, b.MaxParallelCalls, 1)

		if !cfg.Limit.Known() {
			assert.Equal(t, 1, b.MaxParallelCalls)
			continue
		}
		margin := cfg.SafetyMargin
		if margin <= 0 || margin > 1 {
			margin = limits.DefaultSafetyMargin
		}
		graphs := cfg.ConcurrentGraphs
		if graphs < 1 {
			graphs = 1
		}
		ceiling := int(math.Floor(float64(cfg.Limit.RequestsPerMinute) * margin / float64(graphs)))
		if ceiling < 1 {
			ceiling = 1
		}
		assert.LessOrEqual(t, b.MaxParallelCalls, ceiling,
			"rate=%d margin=%f graphs=%d", cfg.Limit.RequestsPerMinute, cfg.SafetyMargin, cfg.ConcurrentGraphs)
	}
}

func TestAdmissionCallSlotCeiling(t *testing.T) {
	adm := limits.NewAdmission(limits.Budget{
		MaxParallelCalls: 1,
		MaxParallelNodes: 4,
		CallsPerSecond:   1000,
	})
	ctx := context.Background()

	release1, err := adm.AcquireNode(ctx, true)
	require.NoError(t, err)

	// A second provider call must block until the first slot frees.
	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = adm.AcquireNode(blocked, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Non-provider work still fits under the wider node ceiling.
	release2, err := adm.AcquireNode(ctx, false)
	require.NoError(t, err)
	release2()

	release1()
	release3, err := adm.AcquireNode(ctx, true)
	require.NoError(t, err)
	release3()
}

func TestAdmissionNodeSlotCeiling(t *testing.T) {
	adm := limits.NewAdmission(limits.Budget{
		MaxParallelCalls: 2,
		MaxParallelNodes: 2,
		CallsPerSecond:   1000,
	})
	ctx := context.Background()

	r1, err := adm.AcquireNode(ctx, false)
	require.NoError(t, err)
	r2, err := adm.AcquireNode(ctx, false)
	require.NoError(t, err)

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = adm.AcquireNode(blocked, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r1()
	r2()
}

func TestAdmissionWaitHonorsCancellation(t *testing.T) {
	// A near-zero rate means the second token effectively never arrives.
	adm := limits.NewAdmission(limits.Budget{
		MaxParallelCalls: 1,
		MaxParallelNodes: 1,
		CallsPerSecond:   0.0001,
	})

	require.NoError(t, adm.Wait(context.Background())) // burst token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := adm.Wait(ctx)
	assert.Error(t, err)
}
