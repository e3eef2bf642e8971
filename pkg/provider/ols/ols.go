// Package ols queries the EBI Ontology Lookup Service for best-hit term matches.
package ols

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

// DefaultBaseURL is the public OLS endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/ols4"

var fieldList = "iri,label,short_form,obo_id,ontology_name,score"

// Client is a provider.FuzzyMatcher backed by OLS search.
type Client struct {
	baseURL   string
	transport *provider.Transport
}

// NewClient creates an OLS client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, attempts int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: provider.NewTransport(provider.ServiceOLS, timeout, attempts),
	}
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(t *provider.Transport) *Client {
	c.transport = t
	return c
}

type searchResponse struct {
	Response struct {
		NumFound int   `json:"numFound"`
		Docs     []doc `json:"docs"`
	} `json:"response"`
}

type doc struct {
	IRI          string  `json:"iri"`
	Label        string  `json:"label"`
	ShortForm    string  `json:"short_form"`
	OBOID        string  `json:"obo_id"`
	OntologyName string  `json:"ontology_name"`
	Score        float64 `json:"score"`
}

// BestMatch returns the top ranked OLS hit for label within ontologies.
func (c *Client) BestMatch(ctx context.Context, ontologies []string, label string) (provider.Candidate, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return provider.Candidate{}, lookup.ErrNoMatch
	}

	q := url.Values{}
	q.Set("q", label)
	q.Set("rows", "1")
	q.Set("fieldList", fieldList)
	if len(ontologies) > 0 {
		q.Set("ontology", strings.Join(ontologies, ","))
	}
	endpoint := c.baseURL + "/api/search?" + q.Encode()

	var resp searchResponse
	err := c.transport.DoJSON(ctx, "search", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return provider.Candidate{}, err
	}

	if len(resp.Response.Docs) == 0 {
		return provider.Candidate{}, lookup.ErrNoMatch
	}
	d := resp.Response.Docs[0]
	cand := provider.Candidate{
		IRI:       d.IRI,
		ShortForm: d.ShortForm,
		OBOID:     d.OBOID,
		Label:     d.Label,
		Ontology:  d.OntologyName,
		Score:     d.Score,
	}
	if cand.ID() == "" {
		return provider.Candidate{}, &lookup.ServiceError{Service: string(provider.ServiceOLS), Op: "search", StatusCode: http.StatusOK, Err: errMissingID}
	}
	return cand, nil
}
