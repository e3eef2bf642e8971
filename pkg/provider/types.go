package provider

import (
	"context"
)

// ServiceID identifies a remote mapping service (e.g., "ols", "oxo").
type ServiceID string

const (
	ServiceOLS   ServiceID = "ols"
	ServiceOxO   ServiceID = "oxo"
	ServiceZooma ServiceID = "zooma"
)

// Candidate is the best hit returned by a text search service.
type Candidate struct {
	IRI       string  `json:"iri,omitempty"`
	ShortForm string  `json:"short_form,omitempty"` // e.g. "EFO_0000270"
	OBOID     string  `json:"obo_id,omitempty"`     // e.g. "EFO:0000270"
	Label     string  `json:"label,omitempty"`
	Ontology  string  `json:"ontology,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// ID returns the preferred identifier: short form, then OBO id, then IRI.
func (c Candidate) ID() string {
	switch {
	case c.ShortForm != "":
		return c.ShortForm
	case c.OBOID != "":
		return c.OBOID
	default:
		return c.IRI
	}
}

// CrossReference is one mapped target of a source code.
type CrossReference struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Distance int    `json:"distance"`
}

// FuzzyMatcher returns the single best scoring term for a free-text label.
//
// Implementations return lookup.ErrNoMatch when the service has no
// candidate and a *lookup.ServiceError when the service could not answer.
type FuzzyMatcher interface {
	BestMatch(ctx context.Context, ontologies []string, label string) (Candidate, error)
}

// CrossReferencer maps codes of one coding system into another.
//
// maxDistance bounds the number of mapping hops. Codes without a mapping
// are absent from the result; an empty result is not an error.
type CrossReferencer interface {
	Map(ctx context.Context, codes []string, sourceSystem, targetSystem string, maxDistance int) (map[string][]CrossReference, error)
}

// HighConfidenceMapper returns curated high-confidence annotations for a label.
// It returns lookup.ErrNoMatch when nothing qualifies.
type HighConfidenceMapper interface {
	HighConfidence(ctx context.Context, ontologies []string, label string) ([]string, error)
}

// TargetIDs flattens cross references into their identifiers, keeping order.
func TargetIDs(refs []CrossReference) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}
