package limits

import "math"

// DefaultSafetyMargin is the fraction of the provider limit the engine allows
// itself to consume.
const DefaultSafetyMargin = 0.8

// DefaultNodeOverheadFactor scales call slots up to node slots, covering node
// work that does not invoke the provider.
const DefaultNodeOverheadFactor = 2

// ProviderRateLimit is the read-only configuration describing what one
// external dependency permits. Zero values mean "unknown"; unknown limits
// degrade to the most conservative budget rather than assuming unlimited
// capacity.
type ProviderRateLimit struct {
	// RequestsPerMinute permitted by the provider. 0 = unknown.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute permitted by the provider. Informational; the engine
	// paces requests, token accounting is reported through NodeResult usage.
	TokensPerMinute int `yaml:"tokens_per_minute"`
}

// Known reports whether the provider declared a request limit.
func (l ProviderRateLimit) Known() bool { return l.RequestsPerMinute > 0 }

// Config holds the inputs the budget is derived from.
type Config struct {
	Limit ProviderRateLimit `yaml:"limit"`

	// SafetyMargin ∈ (0, 1]. Defaults to DefaultSafetyMargin.
	SafetyMargin float64 `yaml:"safety_margin"`

	// ConcurrentGraphs is the expected number of concurrently active graph
	// executions sharing this provider. Defaults to 1.
	ConcurrentGraphs int `yaml:"concurrent_graphs"`

	// NodeOverheadFactor scales MaxParallelCalls to MaxParallelNodes.
	// Defaults to DefaultNodeOverheadFactor.
	NodeOverheadFactor int `yaml:"node_overhead_factor"`
}

// Budget is the computed ceiling on parallel operations. It is always derived
// by Compute, never persisted.
type Budget struct {
	// MaxParallelCalls bounds simultaneous provider calls.
	MaxParallelCalls int

	// MaxParallelNodes bounds simultaneous node executions. It accounts for
	// node overhead that does not invoke the provider and never lets
	// call-bearing nodes exceed MaxParallelCalls.
	MaxParallelNodes int

	// CallsPerSecond is the sustained pacing rate fed to the token bucket.
	CallsPerSecond float64
}

// Compute derives the budget:
//
//	max_parallel_calls = floor(rate_limit_per_minute * safety_margin / concurrent_graphs)
//
// with a floor of 1. An unknown provider limit yields the most conservative
// budget (1 call at a time) rather than assuming unlimited capacity.
func Compute(cfg Config) Budget {
	margin := cfg.SafetyMargin
	if margin <= 0 || margin > 1 {
		margin = DefaultSafetyMargin
	}
	graphs := cfg.ConcurrentGraphs
	if graphs < 1 {
		graphs = 1
	}
	overhead := cfg.NodeOverheadFactor
	if overhead < 1 {
		overhead = DefaultNodeOverheadFactor
	}

	calls := 1
	callsPerSecond := 1.0 / 60.0
	if cfg.Limit.Known() {
		calls = int(math.Floor(float64(cfg.Limit.RequestsPerMinute) * margin / float64(graphs)))
		if calls < 1 {
			calls = 1
		}
		callsPerSecond = float64(cfg.Limit.RequestsPerMinute) * margin / float64(graphs) / 60.0
	}

	return Budget{
		MaxParallelCalls: calls,
		MaxParallelNodes: calls * overhead,
		CallsPerSecond:   callsPerSecond,
	}
}
