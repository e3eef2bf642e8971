package provider

import (
	"context"
	"sync"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

// StaticMatcher answers best-hit queries from a fixed label table.
// It stands in for a remote service in tests.
type StaticMatcher struct {
	mu      sync.Mutex
	matches map[string]Candidate
	err     error
	calls   int
}

// NewStaticMatcher returns a matcher over matches.
func NewStaticMatcher(matches map[string]Candidate) *StaticMatcher {
	if matches == nil {
		matches = make(map[string]Candidate)
	}
	return &StaticMatcher{matches: matches}
}

// FailWith makes every call return err. Passing nil restores normal answers.
func (m *StaticMatcher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times BestMatch was called.
func (m *StaticMatcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *StaticMatcher) BestMatch(ctx context.Context, ontologies []string, label string) (Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return Candidate{}, m.err
	}
	if err := ctx.Err(); err != nil {
		return Candidate{}, &lookup.ServiceError{Service: "static", Op: "best_match", Err: err}
	}
	c, ok := m.matches[label]
	if !ok {
		return Candidate{}, lookup.ErrNoMatch
	}
	return c, nil
}

// StaticCrossReferencer answers cross-reference queries from a fixed table
// keyed by "SYSTEM:code".
type StaticCrossReferencer struct {
	mu    sync.Mutex
	refs  map[string][]CrossReference
	err   error
	calls int
}

// NewStaticCrossReferencer returns a cross-referencer over refs.
func NewStaticCrossReferencer(refs map[string][]CrossReference) *StaticCrossReferencer {
	if refs == nil {
		refs = make(map[string][]CrossReference)
	}
	return &StaticCrossReferencer{refs: refs}
}

// FailWith makes every call return err. Passing nil restores normal answers.
func (x *StaticCrossReferencer) FailWith(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.err = err
}

// Calls returns how many times Map was called.
func (x *StaticCrossReferencer) Calls() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

func (x *StaticCrossReferencer) Map(ctx context.Context, codes []string, sourceSystem, targetSystem string, maxDistance int) (map[string][]CrossReference, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	if x.err != nil {
		return nil, x.err
	}
	out := make(map[string][]CrossReference)
	for _, code := range codes {
		var kept []CrossReference
		for _, ref := range x.refs[sourceSystem+":"+code] {
			if ref.Distance <= maxDistance {
				kept = append(kept, ref)
			}
		}
		if len(kept) > 0 {
			out[code] = kept
		}
	}
	return out, nil
}
