// Package lookup holds the types shared by every resolution step: the
// provenance tags, the result value and the error taxonomy.
package lookup

// Source tags the strategy that produced a result.
type Source string

const (
	SourceExactIndex     Source = "exact-index"
	SourceExactSynonym   Source = "exact-synonym"
	SourceCodedMapping   Source = "coded-mapping"
	SourceCuratedMapping Source = "curated-mapping"
	SourceFuzzyService   Source = "fuzzy-service"
	SourceCrossReference Source = "cross-reference-service"
	SourceHighConfidence Source = "high-confidence-service"
)

// Ontology names one of the locally indexed ontologies.
type Ontology string

const (
	OntologyEFO Ontology = "efo"
	OntologyHP  Ontology = "hp"
)

// Coding systems with special handling.
const (
	SystemOMIM = "OMIM"
	SystemEFO  = "EFO"
)

// Result is the outcome of a single resolution.
type Result struct {
	// IDs holds the resolved identifiers. Free-text steps yield one id,
	// coded steps may yield several in source order.
	IDs    []string `json:"ids"`
	Source Source   `json:"source"`

	// Label is the matched term label when the source reports one.
	Label string `json:"label,omitempty"`

	// Score is the service relevance score (fuzzy matches only).
	Score float64 `json:"score,omitempty"`

	// Distance is the number of mapping hops (cross-references only).
	Distance int `json:"distance,omitempty"`

	// Degraded lists the sources skipped because their service was unavailable.
	Degraded []Source `json:"degraded,omitempty"`
}

// ID returns the first resolved identifier.
func (r Result) ID() string {
	if len(r.IDs) == 0 {
		return ""
	}
	return r.IDs[0]
}
