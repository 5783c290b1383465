package runtime

import (
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// combineUnion is the default Combiner: the union of all deltas, applied in
// node-ID order. The graph builder rejects overlapping write footprints for
// concurrent nodes, so the order cannot change the outcome.
func combineUnion(results []*domain.NodeResult) (domain.GraphState, error) {
	delta := domain.GraphState{}
	for _, r := range results {
		delta.Merge(r.Delta)
	}
	return delta, nil
}

// mergeOutcome is the decision for one batch.
type mergeOutcome struct {
	// delta is the combined state change to apply. Nil when the batch failed.
	delta domain.GraphState
	// terminal ends the execution when non-nil.
	terminal any
	// winner is set under FIRST_SUCCESS.
	winner string
	// succeeded counts the results that contributed.
	succeeded int
	// err is the batch failure, classified by the first failed member.
	err error
}

// evaluate applies the strategy to a batch's results. Results are sorted by
// node ID first; every decision below iterates in that order, which is what
// makes repeated runs of an identical batch bit-identical.
func evaluate(strategy domain.MergeStrategy, combiner domain.Combiner, results []*domain.NodeResult) mergeOutcome {
	sort.Slice(results, func(i, j int) bool { return results[i].NodeID < results[j].NodeID })

	switch strategy {
	case domain.MergeFirstSuccess:
		return evaluateFirstSuccess(results)
	case domain.MergeMajority:
		return evaluateMajority(combiner, results)
	default:
		return evaluateAllSuccess(results)
	}
}

func evaluateAllSuccess(results []*domain.NodeResult) mergeOutcome {
	var out mergeOutcome
	for _, r := range results {
		if !r.Succeeded() {
			out.err = batchError(r)
			return out
		}
	}

	delta := domain.GraphState{}
	for _, r := range results {
		delta.Merge(r.Delta)
		out.succeeded++
		if r.Terminal != nil && out.terminal == nil {
			out.terminal = r.Terminal
		}
	}
	out.delta = delta
	return out
}

func evaluateFirstSuccess(results []*domain.NodeResult) mergeOutcome {
	var out mergeOutcome
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		out.winner = r.NodeID
		out.delta = r.Delta
		if out.delta == nil {
			out.delta = domain.GraphState{}
		}
		out.terminal = r.Terminal
		out.succeeded = 1
		break
	}
	if out.winner == "" {
		out.err = batchError(firstFailed(results))
		return out
	}

	// Losers keep their provenance entry but contribute nothing to the merge.
	for _, r := range results {
		if r.NodeID != out.winner && r.Status == domain.ResultSuccess {
			r.Status = domain.ResultAbandoned
		}
	}
	return out
}

func evaluateMajority(combiner domain.Combiner, results []*domain.NodeResult) mergeOutcome {
	var out mergeOutcome
	var winners []*domain.NodeResult
	for _, r := range results {
		if r.Succeeded() {
			winners = append(winners, r)
		}
	}
	if len(winners)*2 <= len(results) {
		out.err = fmt.Errorf("majority not reached: %d of %d succeeded: %w",
			len(winners), len(results), batchError(firstFailed(results)))
		return out
	}

	if combiner == nil {
		combiner = combineUnion
	}
	delta, err := combiner(winners)
	if err != nil {
		out.err = fmt.Errorf("combiner: %w", err)
		return out
	}
	out.delta = delta
	out.succeeded = len(winners)
	for _, r := range winners {
		if r.Terminal != nil {
			out.terminal = r.Terminal
			break
		}
	}
	return out
}

func firstFailed(results []*domain.NodeResult) *domain.NodeResult {
	for _, r := range results {
		if r.Status == domain.ResultFailed {
			return r
		}
	}
	return nil
}

func batchError(r *domain.NodeResult) error {
	if r == nil {
		return fmt.Errorf("batch produced no successful result")
	}
	return fmt.Errorf("node %s failed: %s", r.NodeID, r.Error)
}
