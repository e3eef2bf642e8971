package api

import (
	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
	"github.com/rmax-ai/ontoma/pkg/resolver"
)

// ResolveRequest matches the POST /v1/resolve body schema.
// Either Label, or Code with System, must be set.
type ResolveRequest struct {
	Label  string `json:"label,omitempty"`
	Code   string `json:"code,omitempty"`
	System string `json:"system,omitempty"`
}

// ResolveResponse matches the response for /v1/resolve.
type ResolveResponse struct {
	Query   resolver.Query `json:"query"`
	Result  lookup.Result  `json:"result"`
	EventID string         `json:"event_id,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Message  string          `json:"message,omitempty"`
	Degraded []lookup.Source `json:"degraded,omitempty"`
}

// NameResponse matches the response for GET /v1/lookup/name.
type NameResponse struct {
	Ontology lookup.Ontology `json:"ontology"`
	Name     string          `json:"name"`
	ID       string          `json:"id"`
}

// TargetsResponse matches the responses for GET /v1/lookup/code and /v1/lookup/curated.
type TargetsResponse struct {
	Key    string   `json:"key"`
	System string   `json:"system,omitempty"`
	IDs    []string `json:"ids"`
}

// FuzzyResponse matches the response for GET /v1/lookup/fuzzy.
type FuzzyResponse struct {
	Label     string             `json:"label"`
	Candidate provider.Candidate `json:"candidate"`
	ID        string             `json:"id"`
}

// CrossReferenceResponse matches the response for GET /v1/lookup/xref.
type CrossReferenceResponse struct {
	System   string                    `json:"system"`
	Code     string                    `json:"code"`
	Distance int                       `json:"distance"`
	Mappings []provider.CrossReference `json:"mappings"`
}
