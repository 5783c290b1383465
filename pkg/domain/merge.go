package domain

// MergeStrategy is the policy for combining the results of one parallel batch.
type MergeStrategy string

const (
	// MergeFirstSuccess adopts the first successful result and abandons the
	// rest. Abandoned results are retained in the provenance chain, never
	// dropped.
	MergeFirstSuccess MergeStrategy = "FIRST_SUCCESS"
	// MergeAllSuccess requires every batch member to succeed; one failure
	// fails the batch and nothing is merged.
	MergeAllSuccess MergeStrategy = "ALL_SUCCESS"
	// MergeMajority succeeds when more than half of the members succeed; the
	// successful subset is combined by the configured Combiner.
	MergeMajority MergeStrategy = "MAJORITY"
)

// ParseMergeStrategy validates a strategy name from configuration.
func ParseMergeStrategy(s string) (MergeStrategy, bool) {
	switch MergeStrategy(s) {
	case MergeFirstSuccess, MergeAllSuccess, MergeMajority:
		return MergeStrategy(s), true
	case "":
		return MergeAllSuccess, true
	default:
		return "", false
	}
}

// Combiner folds the successful results of a MAJORITY batch into one delta.
// Results arrive sorted by node ID, so a deterministic combiner yields
// deterministic output.
type Combiner func(results []*NodeResult) (GraphState, error)
