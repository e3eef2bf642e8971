// Package zooma queries the EBI Zooma annotation service for curated,
// high-confidence label-to-ontology annotations.
package zooma

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

// DefaultBaseURL is the public Zooma endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/spot/zooma/v2/api"

// ConfidenceHigh is the only confidence level accepted.
const ConfidenceHigh = "HIGH"

// Client is a provider.HighConfidenceMapper backed by Zooma.
type Client struct {
	baseURL   string
	transport *provider.Transport
}

// NewClient creates a Zooma client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, attempts int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: provider.NewTransport(provider.ServiceZooma, timeout, attempts),
	}
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(t *provider.Transport) *Client {
	c.transport = t
	return c
}

type annotation struct {
	SemanticTags []string `json:"semanticTags"`
	Confidence   string   `json:"confidence"`
}

// HighConfidence returns the semantic tags of every HIGH confidence
// annotation for label, in service order.
func (c *Client) HighConfidence(ctx context.Context, ontologies []string, label string) ([]string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, lookup.ErrNoMatch
	}

	q := url.Values{}
	q.Set("propertyValue", label)
	filter := "required:[none]"
	if len(ontologies) > 0 {
		filter += fmt.Sprintf(",ontologies:[%s]", strings.Join(ontologies, ","))
	}
	q.Set("filter", filter)
	endpoint := c.baseURL + "/services/annotate?" + q.Encode()

	var annotations []annotation
	err := c.transport.DoJSON(ctx, "annotate", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &annotations)
	if err != nil {
		return nil, err
	}

	var tags []string
	seen := make(map[string]struct{})
	for _, a := range annotations {
		if !strings.EqualFold(a.Confidence, ConfidenceHigh) {
			continue
		}
		for _, tag := range a.SemanticTags {
			if _, dup := seen[tag]; dup || tag == "" {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil, lookup.ErrNoMatch
	}
	return tags, nil
}
