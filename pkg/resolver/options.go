package resolver

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

// Mode decides what happens when a remote step cannot be evaluated.
type Mode int

const (
	// ModeStrict aborts the cascade and reports the service failure.
	ModeStrict Mode = iota
	// ModeDegraded skips the failed step and continues with the next one.
	ModeDegraded
)

func (m Mode) String() string {
	if m == ModeDegraded {
		return "degraded"
	}
	return "strict"
}

// ParseMode accepts "strict" or "degraded".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, nil
	case "degraded", "lenient":
		return ModeDegraded, nil
	default:
		return ModeStrict, fmt.Errorf("unknown cascade mode: %s", s)
	}
}

// DefaultCrossRefDistance permits one intermediate coding system.
const DefaultCrossRefDistance = 2

// Options tune the cascade.
type Options struct {
	Mode Mode

	// TargetOntology is the index consulted by the free-text exact steps.
	TargetOntology lookup.Ontology

	// TargetSystem is the cross-reference target coding system.
	TargetSystem string

	// FuzzyScope lists the ontologies the fuzzy and high-confidence services search.
	FuzzyScope []string

	// CrossRefDistance bounds cross-reference hops.
	CrossRefDistance int

	// SynonymMatch adds an exact synonym step after the canonical name step.
	SynonymMatch bool

	Logger logrus.FieldLogger
}

// DefaultOptions returns strict mode, EFO as target and synonym matching on.
func DefaultOptions() Options {
	return Options{
		Mode:             ModeStrict,
		TargetOntology:   lookup.OntologyEFO,
		TargetSystem:     lookup.SystemEFO,
		FuzzyScope:       []string{string(lookup.OntologyEFO)},
		CrossRefDistance: DefaultCrossRefDistance,
		SynonymMatch:     true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetOntology == "" {
		o.TargetOntology = d.TargetOntology
	}
	if o.TargetSystem == "" {
		o.TargetSystem = d.TargetSystem
	}
	if len(o.FuzzyScope) == 0 {
		o.FuzzyScope = d.FuzzyScope
	}
	if o.CrossRefDistance <= 0 {
		o.CrossRefDistance = d.CrossRefDistance
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}
