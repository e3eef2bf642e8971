// Package oxo queries the EBI OxO cross-reference service.
package oxo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

// DefaultBaseURL is the public OxO endpoint.
const DefaultBaseURL = "https://www.ebi.ac.uk/spot/oxo"

const (
	defaultPageSize = 500
	defaultMaxPages = 50
)

// ErrTooManyPages is wrapped in the service error returned when OxO still
// offers a next page after the page limit.
var ErrTooManyPages = errors.New("oxo result exceeds page limit")

// Client is a provider.CrossReferencer backed by OxO.
type Client struct {
	baseURL   string
	pageSize  int
	maxPages  int
	transport *provider.Transport
}

// NewClient creates an OxO client. baseURL defaults to DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, attempts int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageSize:  defaultPageSize,
		maxPages:  defaultMaxPages,
		transport: provider.NewTransport(provider.ServiceOxO, timeout, attempts),
	}
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(t *provider.Transport) *Client {
	c.transport = t
	return c
}

// WithPageSize sets the page size requested from OxO.
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// WithMaxPages caps the number of result pages followed per call.
func (c *Client) WithMaxPages(n int) *Client {
	if n > 0 {
		c.maxPages = n
	}
	return c
}

type searchRequest struct {
	IDs           []string `json:"ids"`
	InputSource   string   `json:"inputSource"`
	MappingTarget []string `json:"mappingTarget"`
	Distance      int      `json:"distance"`
}

type searchResponse struct {
	Embedded struct {
		SearchResults []searchResult `json:"searchResults"`
	} `json:"_embedded"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

type searchResult struct {
	QueryID      string    `json:"queryId"`
	QuerySource  string    `json:"querySource"`
	Curie        string    `json:"curie"`
	Label        string    `json:"label"`
	MappingsList []mapping `json:"mappingResponseList"`
}

type mapping struct {
	Curie        string `json:"curie"`
	Label        string `json:"label"`
	TargetPrefix string `json:"targetPrefix"`
	Distance     int    `json:"distance"`
}

// Map resolves codes from sourceSystem into targetSystem within maxDistance hops.
// Targets of each code are ordered by ascending distance.
func (c *Client) Map(ctx context.Context, codes []string, sourceSystem, targetSystem string, maxDistance int) (map[string][]provider.CrossReference, error) {
	out := make(map[string][]provider.CrossReference)
	if len(codes) == 0 {
		return out, nil
	}
	if maxDistance < 1 {
		maxDistance = 1
	}

	body, err := json.Marshal(searchRequest{
		IDs:           codes,
		InputSource:   sourceSystem,
		MappingTarget: []string{targetSystem},
		Distance:      maxDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oxo request: %w", err)
	}

	seen := make(map[string]map[string]struct{})
	next := fmt.Sprintf("%s/api/search?size=%d", c.baseURL, c.pageSize)
	for page := 0; next != ""; page++ {
		if page == c.maxPages {
			return nil, &lookup.ServiceError{
				Service: string(provider.ServiceOxO),
				Op:      "search",
				Err:     fmt.Errorf("%w (%d pages of %d)", ErrTooManyPages, c.maxPages, c.pageSize),
			}
		}
		endpoint := next
		var resp searchResponse
		err := c.transport.DoJSON(ctx, "search", func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		}, &resp)
		if err != nil {
			return nil, err
		}

		for _, res := range resp.Embedded.SearchResults {
			code := res.QueryID
			if code == "" {
				code = strings.TrimPrefix(res.Curie, sourceSystem+":")
			}
			for _, m := range res.MappingsList {
				if m.Curie == "" || m.Distance > maxDistance {
					continue
				}
				if m.TargetPrefix != "" && !strings.EqualFold(m.TargetPrefix, targetSystem) {
					continue
				}
				if seen[code] == nil {
					seen[code] = make(map[string]struct{})
				}
				if _, dup := seen[code][m.Curie]; dup {
					continue
				}
				seen[code][m.Curie] = struct{}{}
				out[code] = append(out[code], provider.CrossReference{ID: m.Curie, Label: m.Label, Distance: m.Distance})
			}
		}

		next = ""
		if resp.Links.Next != nil {
			next = resp.Links.Next.Href
		}
	}

	for code := range out {
		refs := out[code]
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].Distance < refs[j].Distance })
	}
	return out, nil
}
