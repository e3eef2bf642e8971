package resolver

import (
	"context"
	"strings"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

type step struct {
	source lookup.Source
	run    func(ctx context.Context, q Query) (lookup.Result, error)
}

// codedSteps: curated OMIM table (OMIM only), then cross-reference service.
func (r *Resolver) codedSteps(q Query) []step {
	var steps []step
	if strings.EqualFold(q.System, lookup.SystemOMIM) {
		steps = append(steps, step{source: lookup.SourceCodedMapping, run: r.omimStep})
	}
	return append(steps, step{source: lookup.SourceCrossReference, run: r.crossRefStep})
}

// freeTextSteps: canonical name, synonym, curated table, fuzzy service,
// high-confidence service.
func (r *Resolver) freeTextSteps() []step {
	steps := []step{{source: lookup.SourceExactIndex, run: r.exactStep}}
	if r.opts.SynonymMatch {
		steps = append(steps, step{source: lookup.SourceExactSynonym, run: r.synonymStep})
	}
	steps = append(steps,
		step{source: lookup.SourceCuratedMapping, run: r.curatedStep},
		step{source: lookup.SourceFuzzyService, run: r.fuzzyStep},
	)
	if r.c.HighConfidence != nil {
		steps = append(steps, step{source: lookup.SourceHighConfidence, run: r.highConfidenceStep})
	}
	return steps
}

func (r *Resolver) exactStep(_ context.Context, q Query) (lookup.Result, error) {
	id, err := r.c.Indexes[r.opts.TargetOntology].Lookup(q.Label)
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: []string{id}, Label: q.Label}, nil
}

func (r *Resolver) synonymStep(_ context.Context, q Query) (lookup.Result, error) {
	id, err := r.c.Indexes[r.opts.TargetOntology].LookupSynonym(q.Label)
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: []string{id}, Label: q.Label}, nil
}

func (r *Resolver) curatedStep(_ context.Context, q Query) (lookup.Result, error) {
	targets, err := r.c.Curated.Lookup(q.Label)
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: targets, Label: q.Label}, nil
}

func (r *Resolver) fuzzyStep(ctx context.Context, q Query) (lookup.Result, error) {
	cand, err := r.c.Fuzzy.BestMatch(ctx, r.opts.FuzzyScope, strings.TrimSpace(q.Label))
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: []string{cand.ID()}, Label: cand.Label, Score: cand.Score}, nil
}

func (r *Resolver) highConfidenceStep(ctx context.Context, q Query) (lookup.Result, error) {
	label := strings.TrimSpace(q.Label)
	ids, err := r.c.HighConfidence.HighConfidence(ctx, r.opts.FuzzyScope, label)
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: ids, Label: label}, nil
}

func (r *Resolver) omimStep(_ context.Context, q Query) (lookup.Result, error) {
	targets, err := r.c.OMIM.Lookup(q.Code)
	if err != nil {
		return lookup.Result{}, err
	}
	return lookup.Result{IDs: targets}, nil
}

func (r *Resolver) crossRefStep(ctx context.Context, q Query) (lookup.Result, error) {
	m, err := r.c.CrossRef.Map(ctx, []string{q.Code}, q.System, r.opts.TargetSystem, r.opts.CrossRefDistance)
	if err != nil {
		return lookup.Result{}, err
	}
	refs := m[q.Code]
	if len(refs) == 0 {
		return lookup.Result{}, lookup.ErrNoMatch
	}
	res := lookup.Result{IDs: provider.TargetIDs(refs), Label: refs[0].Label, Distance: refs[0].Distance}
	for _, ref := range refs[1:] {
		if ref.Distance < res.Distance {
			res.Distance = ref.Distance
			res.Label = ref.Label
		}
	}
	return res, nil
}
