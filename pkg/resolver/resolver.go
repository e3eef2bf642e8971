// Package resolver resolves free-text labels and coded identifiers into
// the reference ontology by walking a fixed-priority cascade of sources.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/mapping"
	"github.com/rmax-ai/ontoma/pkg/ontology"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

var (
	// ErrInvalidQuery is returned for a query with neither a label nor a code,
	// or a code without a coding system.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnknownOntology is returned when no index exists for the requested ontology.
	ErrUnknownOntology = errors.New("unknown ontology")

	// ErrUnsupportedSystem is returned when no curated table exists for a coding system.
	ErrUnsupportedSystem = errors.New("unsupported coding system")
)

// Components are the loaded indices and the service ports. Indices and
// tables must be fully built before they are handed over.
type Components struct {
	Indexes        map[lookup.Ontology]*ontology.Index
	OMIM           *mapping.Table
	Curated        *mapping.Table
	Fuzzy          provider.FuzzyMatcher
	CrossRef       provider.CrossReferencer
	HighConfidence provider.HighConfidenceMapper // optional
}

// Query is either a free-text Label or a Code of coding System.
type Query struct {
	Label  string `json:"label,omitempty"`
	Code   string `json:"code,omitempty"`
	System string `json:"system,omitempty"`
}

// IsCoded reports whether q names a coded identifier.
func (q Query) IsCoded() bool { return q.Code != "" }

func (q Query) String() string {
	if q.IsCoded() {
		return q.System + ":" + q.Code
	}
	return q.Label
}

// Resolver runs the cascade. It holds no mutable state and is safe for
// concurrent use.
type Resolver struct {
	c    Components
	opts Options
}

// New validates the components and returns a resolver.
func New(c Components, opts Options) (*Resolver, error) {
	opts = opts.withDefaults()
	if c.Indexes[opts.TargetOntology] == nil {
		return nil, fmt.Errorf("no index for target ontology %s", opts.TargetOntology)
	}
	if c.Fuzzy == nil {
		return nil, errors.New("fuzzy matcher is required")
	}
	if c.CrossRef == nil {
		return nil, errors.New("cross-referencer is required")
	}
	if c.OMIM == nil {
		c.OMIM = mapping.NewTable("omim", nil)
	}
	if c.Curated == nil {
		c.Curated = mapping.NewTable("curated", nil)
	}

	for ont, ix := range c.Indexes {
		IndexEntries.WithLabelValues(string(ont)).Set(float64(ix.Len()))
		IndexEntries.WithLabelValues(string(ont) + "_synonyms").Set(float64(ix.SynonymLen()))
	}
	IndexEntries.WithLabelValues(c.OMIM.Name()).Set(float64(c.OMIM.Len()))
	IndexEntries.WithLabelValues(c.Curated.Name()).Set(float64(c.Curated.Len()))

	return &Resolver{c: c, opts: opts}, nil
}

// Options returns the effective options.
func (r *Resolver) Options() Options { return r.opts }

// LookupName matches name exactly against the canonical names of ont.
func (r *Resolver) LookupName(ont lookup.Ontology, name string) (string, error) {
	ix, ok := r.c.Indexes[ont]
	if !ok {
		return "", fmt.Errorf("%s: %w", ont, ErrUnknownOntology)
	}
	return ix.Lookup(name)
}

// LookupCode returns the curated targets of a coded identifier.
func (r *Resolver) LookupCode(system, code string) ([]string, error) {
	if !strings.EqualFold(system, lookup.SystemOMIM) {
		return nil, fmt.Errorf("%s: %w", system, ErrUnsupportedSystem)
	}
	return r.c.OMIM.Lookup(normalizeCode(lookup.SystemOMIM, code))
}

// LookupCurated returns the curated targets of a free-text label.
func (r *Resolver) LookupCurated(label string) ([]string, error) {
	return r.c.Curated.Lookup(label)
}

// LookupFuzzy returns the best fuzzy hit for label in the configured scope.
func (r *Resolver) LookupFuzzy(ctx context.Context, label string) (provider.Candidate, error) {
	return r.c.Fuzzy.BestMatch(ctx, r.opts.FuzzyScope, label)
}

// LookupCrossReference maps one code of system into the target system.
// A distance <= 0 uses the configured default.
func (r *Resolver) LookupCrossReference(ctx context.Context, system, code string, distance int) ([]provider.CrossReference, error) {
	if distance <= 0 {
		distance = r.opts.CrossRefDistance
	}
	code = normalizeCode(system, code)
	m, err := r.c.CrossRef.Map(ctx, []string{code}, strings.ToUpper(system), r.opts.TargetSystem, distance)
	if err != nil {
		return nil, err
	}
	refs := m[code]
	if len(refs) == 0 {
		return nil, fmt.Errorf("%s:%s: %w", system, code, lookup.ErrNoMatch)
	}
	return refs, nil
}

// Resolve runs the cascade for q and returns the first acceptable hit.
//
// A miss at every step yields lookup.ErrNotFound. A service failure aborts
// in strict mode; in degraded mode it is skipped, listed in
// Result.Degraded, and turned into the returned error if nothing matched.
//
// Local steps match the label as given; only the remote services see it
// trimmed.
func (r *Resolver) Resolve(ctx context.Context, q Query) (lookup.Result, error) {
	q.Code = strings.TrimSpace(q.Code)
	q.System = strings.ToUpper(strings.TrimSpace(q.System))

	var steps []step
	switch {
	case q.IsCoded() && q.System == "":
		return r.finish(lookup.Result{}, fmt.Errorf("code %q without coding system: %w", q.Code, ErrInvalidQuery))
	case q.IsCoded():
		q.Code = normalizeCode(q.System, q.Code)
		steps = r.codedSteps(q)
	case strings.TrimSpace(q.Label) != "":
		steps = r.freeTextSteps()
	default:
		return r.finish(lookup.Result{}, fmt.Errorf("empty query: %w", ErrInvalidQuery))
	}

	log := r.opts.Logger.WithField("query", q.String())

	var (
		degraded []lookup.Source
		lastErr  error
	)
	for _, s := range steps {
		res, err := s.run(ctx, q)
		if err == nil {
			StepTotal.WithLabelValues(string(s.source), "hit").Inc()
			log.WithField("step", s.source).Debug("cascade_hit")
			res.Source = s.source
			res.Degraded = degraded
			return r.finish(res, nil)
		}
		if lookup.IsMiss(err) {
			StepTotal.WithLabelValues(string(s.source), "miss").Inc()
			continue
		}

		StepTotal.WithLabelValues(string(s.source), "unavailable").Inc()
		err = asServiceError(s.source, err)
		if r.opts.Mode == ModeStrict {
			log.WithField("step", s.source).WithError(err).Warn("cascade_aborted")
			return r.finish(lookup.Result{}, fmt.Errorf("%s step: %w", s.source, err))
		}
		log.WithField("step", s.source).WithError(err).Warn("cascade_step_skipped")
		degraded = append(degraded, s.source)
		lastErr = err
	}

	if lastErr != nil {
		return r.finish(lookup.Result{Degraded: degraded}, fmt.Errorf("%s: cascade incomplete, skipped %s: %w", q, joinSources(degraded), lastErr))
	}
	return r.finish(lookup.Result{}, fmt.Errorf("%s: %w", q, lookup.ErrNotFound))
}

func (r *Resolver) finish(res lookup.Result, err error) (lookup.Result, error) {
	outcome := "resolved"
	source := string(res.Source)
	if err != nil {
		outcome = lookup.Kind(err)
		if errors.Is(err, ErrInvalidQuery) {
			outcome = "invalid"
		}
		source = "none"
	}
	ResolutionsTotal.WithLabelValues(source, outcome).Inc()
	return res, err
}

// asServiceError keeps service errors intact and wraps anything else a
// port returned outside its contract.
func asServiceError(source lookup.Source, err error) error {
	if errors.Is(err, lookup.ErrServiceUnavailable) {
		return err
	}
	return &lookup.ServiceError{Service: string(source), Op: "lookup", Err: err}
}

// normalizeCode strips a "SYSTEM:" prefix from code.
func normalizeCode(system, code string) string {
	code = strings.TrimSpace(code)
	if prefix, rest, ok := strings.Cut(code, ":"); ok && strings.EqualFold(prefix, system) {
		return strings.TrimSpace(rest)
	}
	return code
}

func joinSources(sources []lookup.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
