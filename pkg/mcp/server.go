package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/ontoma/pkg/client"
	"github.com/rmax-ai/ontoma/pkg/lookup"
)

const resolutionsURI = "ontoma://resolutions"

// Server adapts ontoma-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"ontoma",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		resolutionsURI,
		"Ontoma Resolution Log",
		mcp.WithResourceDescription("Recent term resolutions with their answering source"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadResolutions)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"resolve_term",
		mcp.WithDescription("Map a disease or phenotype label, or a coded identifier, to EFO terms."),
		mcp.WithString("label", mcp.Description("Free-text label, e.g. 'asthma'")),
		mcp.WithString("code", mcp.Description("Coded identifier, e.g. '230650'")),
		mcp.WithString("system", mcp.Description("Coding system of code, e.g. 'OMIM' or 'ICD9CM'")),
	), s.handleResolveTerm)

	s.mcpServer.AddTool(mcp.NewTool(
		"lookup_name",
		mcp.WithDescription("Exact lookup of a canonical term name in a local ontology index."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Canonical term name")),
		mcp.WithString("ontology", mcp.Description("Ontology to search: 'efo' (default) or 'hp'")),
	), s.handleLookupName)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"ontoma-aware",
		mcp.WithPromptDescription("Explains how ontoma maps labels and codes to EFO"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadResolutions(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.apiClient.GetResolutions(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch resolutions: %w", err)
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolutions: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleResolveTerm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := client.Query{
		Label:  mcp.ParseString(request, "label", ""),
		Code:   mcp.ParseString(request, "code", ""),
		System: mcp.ParseString(request, "system", ""),
	}
	if q.Label == "" && q.Code == "" {
		return mcp.NewToolResultError("either label or code is required"), nil
	}

	res, err := s.apiClient.Resolve(ctx, q)
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		return mcp.NewToolResultText(fmt.Sprintf("No EFO mapping found for %q.", queryText(q))), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", queryText(q))
	fmt.Fprintf(&b, "Targets: %s\n", strings.Join(res.Result.IDs, ", "))
	fmt.Fprintf(&b, "Source: %s\n", res.Result.Source)
	if res.Result.Label != "" {
		fmt.Fprintf(&b, "Label: %s\n", res.Result.Label)
	}
	if res.Result.Distance > 0 {
		fmt.Fprintf(&b, "Distance: %d\n", res.Result.Distance)
	}
	if len(res.Result.Degraded) > 0 {
		fmt.Fprintf(&b, "Skipped (service unavailable): %v\n", res.Result.Degraded)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleLookupName(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "name", "")
	ontology := mcp.ParseString(request, "ontology", string(lookup.OntologyEFO))
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	id, err := s.apiClient.LookupName(ctx, ontology, name)
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		return mcp.NewToolResultText(fmt.Sprintf("%q is not a canonical %s name.", name, ontology)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(id), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "ontoma-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You can map disease and phenotype terms to the Experimental Factor Ontology (EFO) with ontoma.

Sources are tried in a fixed order and the first hit wins:
- Free text: exact EFO name, exact EFO synonym, curated mapping, OLS fuzzy search, Zooma high-confidence annotation.
- Codes: the curated OMIM table (OMIM only), then OxO cross-references.

Use 'resolve_term' with a label, or with a code and its coding system.
The answer names the source; fuzzy-service answers are best guesses and deserve a check.
Use 'lookup_name' to test whether a label is already a canonical EFO or HP name.
`

	return mcp.NewGetPromptResult(
		"ontoma-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func queryText(q client.Query) string {
	if q.Code != "" {
		return q.System + ":" + q.Code
	}
	return q.Label
}
