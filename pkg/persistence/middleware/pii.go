package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

type piiMiddleware struct {
	next     ports.ExecutionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks state values whose keys
// match the patterns before they reach durable storage. Masking applies to
// snapshots and to the deltas carried by provenance entries; the in-memory
// state the executor works with is never touched.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ExecutionStore) ports.ExecutionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	cloned := *snap
	cloned.State = maskState(snap.State, m.patterns)
	cloned.InitialState = maskState(snap.InitialState, m.patterns)
	return m.next.SaveSnapshot(ctx, &cloned)
}

func (m *piiMiddleware) LoadSnapshot(ctx context.Context, executionID string) (*domain.Snapshot, error) {
	return m.next.LoadSnapshot(ctx, executionID)
}

func (m *piiMiddleware) AppendProvenance(ctx context.Context, executionID string, entry domain.ProvenanceEntry) (uint64, error) {
	if entry.Result != nil && len(entry.Result.Delta) > 0 {
		cloned := *entry.Result
		cloned.Delta = maskState(entry.Result.Delta, m.patterns)
		entry.Result = &cloned
	}
	return m.next.AppendProvenance(ctx, executionID, entry)
}

func (m *piiMiddleware) History(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	return m.next.History(ctx, executionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, executionID string) error {
	return m.next.Delete(ctx, executionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// maskState returns a masked deep copy; the input is never mutated because the
// executor still holds it.
func maskState(state domain.GraphState, patterns []*regexp.Regexp) domain.GraphState {
	if state == nil {
		return nil
	}
	out := make(domain.GraphState, len(state))
	for k, v := range state {
		out[k] = maskValue(k, v, patterns)
	}
	return out
}

func maskValue(key string, value any, patterns []*regexp.Regexp) any {
	for _, p := range patterns {
		if p.MatchString(key) {
			return "***"
		}
	}
	if sub, ok := value.(map[string]any); ok {
		masked := make(map[string]any, len(sub))
		for k, v := range sub {
			masked[k] = maskValue(k, v, patterns)
		}
		return masked
	}
	return value
}
