package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/mapping"
	"github.com/rmax-ai/ontoma/pkg/ontology"
	"github.com/rmax-ai/ontoma/pkg/provider"
	"github.com/rmax-ai/ontoma/pkg/resolver"
	"github.com/rmax-ai/ontoma/pkg/store"
)

const testOBO = `[Term]
id: EFO:0000270
name: asthma

[Term]
id: EFO:0000676
name: psoriasis
`

type testEnv struct {
	server *Server
	store  *store.Store
	fuzzy  *provider.StaticMatcher
}

func newTestEnv(t *testing.T, mode resolver.Mode) *testEnv {
	t.Helper()
	g, err := ontology.ParseOBO(strings.NewReader(testOBO))
	require.NoError(t, err)
	ix, err := ontology.BuildIndex(lookup.OntologyEFO, g, ontology.KeepFirst)
	require.NoError(t, err)

	fuzzy := provider.NewStaticMatcher(map[string]provider.Candidate{
		"athsma": {ShortForm: "EFO_0000270", Label: "asthma", Score: 3.1},
	})
	opts := resolver.DefaultOptions()
	opts.Mode = mode
	res, err := resolver.New(resolver.Components{
		Indexes: map[lookup.Ontology]*ontology.Index{lookup.OntologyEFO: ix},
		OMIM: mapping.NewTable("omim", []mapping.Row{
			{Key: "230650", Targets: []string{"http://www.orpha.net/ORDO/Orphanet_354", "http://www.orpha.net/ORDO/Orphanet_79257"}},
		}),
		Curated: mapping.NewTable("curated", []mapping.Row{
			{Key: "childhood asthma", Targets: []string{"http://www.ebi.ac.uk/efo/EFO_0004591"}},
		}),
		Fuzzy: fuzzy,
		CrossRef: provider.NewStaticCrossReferencer(map[string][]provider.CrossReference{
			"ICD9CM:696": {{ID: "EFO:0000676", Label: "psoriasis", Distance: 2}},
		}),
	}, opts)
	require.NoError(t, err)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "ontoma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &testEnv{server: NewServer(res, st, "", nil), store: st, fuzzy: fuzzy}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'self'",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
	}

	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestHealthAndTraceID(t *testing.T) {
	env := newTestEnv(t, resolver.ModeStrict)

	w := env.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Len(t, w.Header().Get("X-Trace-ID"), 32)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Trace-ID", "abc")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Trace-ID"))
}

func TestHandleResolve(t *testing.T) {
	env := newTestEnv(t, resolver.ModeStrict)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantSource lookup.Source
		wantIDs    []string
		wantError  string
	}{
		{"exact name", http.MethodGet, "/v1/resolve?label=asthma", "", http.StatusOK, lookup.SourceExactIndex, []string{"EFO:0000270"}, ""},
		{"curated label", http.MethodGet, "/v1/resolve?label=childhood+asthma", "", http.StatusOK, lookup.SourceCuratedMapping, []string{"http://www.ebi.ac.uk/efo/EFO_0004591"}, ""},
		{"fuzzy", http.MethodPost, "/v1/resolve", `{"label":"athsma"}`, http.StatusOK, lookup.SourceFuzzyService, []string{"EFO_0000270"}, ""},
		{"omim code", http.MethodPost, "/v1/resolve", `{"code":"230650","system":"OMIM"}`, http.StatusOK, lookup.SourceCodedMapping,
			[]string{"http://www.orpha.net/ORDO/Orphanet_354", "http://www.orpha.net/ORDO/Orphanet_79257"}, ""},
		{"cross reference", http.MethodGet, "/v1/resolve?code=696&system=ICD9CM", "", http.StatusOK, lookup.SourceCrossReference, []string{"EFO:0000676"}, ""},
		{"not found", http.MethodGet, "/v1/resolve?label=zzz", "", http.StatusNotFound, "", nil, "not_found"},
		{"empty query", http.MethodGet, "/v1/resolve", "", http.StatusBadRequest, "", nil, "invalid_query"},
		{"bad json", http.MethodPost, "/v1/resolve", `{`, http.StatusBadRequest, "", nil, "invalid_json_body"},
		{"bad method", http.MethodDelete, "/v1/resolve", "", http.StatusMethodNotAllowed, "", nil, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			w := env.do(t, tt.method, tt.target, body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantError != "" {
				var e ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
				assert.Equal(t, tt.wantError, e.Error)
				return
			}
			var resp ResolveResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSource, resp.Result.Source)
			assert.Equal(t, tt.wantIDs, resp.Result.IDs)
			assert.NotEmpty(t, resp.EventID)
		})
	}
}

func TestHandleResolveServiceUnavailable(t *testing.T) {
	for _, mode := range []resolver.Mode{resolver.ModeStrict, resolver.ModeDegraded} {
		t.Run(mode.String(), func(t *testing.T) {
			env := newTestEnv(t, mode)
			env.fuzzy.FailWith(&lookup.ServiceError{Service: "ols", Op: "search", Err: errors.New("down")})

			w := env.do(t, http.MethodGet, "/v1/resolve?label=athsma", nil)
			require.Equal(t, http.StatusServiceUnavailable, w.Code)

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, "service_unavailable", e.Error)
			if mode == resolver.ModeDegraded {
				assert.Equal(t, []lookup.Source{lookup.SourceFuzzyService}, e.Degraded)
			}

			events, err := env.store.ReadRecentEvents(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, store.EventTypeResolutionFailed, events[0].EventType)
			assert.Equal(t, "service_unavailable", events[0].Outcome)
		})
	}
}

func TestLookupEndpoints(t *testing.T) {
	env := newTestEnv(t, resolver.ModeStrict)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"name", "/v1/lookup/name?ontology=efo&name=asthma", http.StatusOK, `"id":"EFO:0000270"`},
		{"name default ontology", "/v1/lookup/name?name=psoriasis", http.StatusOK, `"id":"EFO:0000676"`},
		{"name missing", "/v1/lookup/name?name=zzz", http.StatusNotFound, `"error":"not_found"`},
		{"name unknown ontology", "/v1/lookup/name?ontology=mondo&name=asthma", http.StatusBadRequest, `"error":"unknown_ontology"`},
		{"name required", "/v1/lookup/name", http.StatusBadRequest, `"error":"missing_name"`},
		{"code", "/v1/lookup/code?system=OMIM&code=230650", http.StatusOK, `Orphanet_79257`},
		{"code unsupported", "/v1/lookup/code?system=ICD10&code=J45", http.StatusBadRequest, `"error":"unsupported_system"`},
		{"curated", "/v1/lookup/curated?label=childhood+asthma", http.StatusOK, `EFO_0004591`},
		{"curated missing", "/v1/lookup/curated?label=asthma", http.StatusNotFound, `"error":"not_found"`},
		{"fuzzy", "/v1/lookup/fuzzy?label=athsma", http.StatusOK, `"id":"EFO_0000270"`},
		{"fuzzy no match", "/v1/lookup/fuzzy?label=zzz", http.StatusNotFound, `"error":"no_match"`},
		{"xref", "/v1/lookup/xref?system=ICD9CM&code=696", http.StatusOK, `"id":"EFO:0000676"`},
		{"xref too far", "/v1/lookup/xref?system=ICD9CM&code=696&distance=1", http.StatusNotFound, `"error":"no_match"`},
		{"xref bad distance", "/v1/lookup/xref?system=ICD9CM&code=696&distance=x", http.StatusBadRequest, `"error":"invalid_distance"`},
		{"xref missing", "/v1/lookup/xref?code=696", http.StatusBadRequest, `"error":"missing_required_fields"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestResolutionsAndReports(t *testing.T) {
	env := newTestEnv(t, resolver.ModeStrict)

	env.do(t, http.MethodGet, "/v1/resolve?label=asthma", nil)
	env.do(t, http.MethodGet, "/v1/resolve?label=zzz", nil)

	w := env.do(t, http.MethodGet, "/v1/resolutions?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []*store.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "zzz", events[0].Query.Label)
	assert.Equal(t, "not_found", events[0].Outcome)
	assert.Equal(t, "exact-index", events[1].Source)

	w = env.do(t, http.MethodGet, "/v1/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "asthma", records[1][1])

	w = env.do(t, http.MethodGet, "/v1/reports?type=outcomes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/reports?type=usage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/reports?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLogDisabled(t *testing.T) {
	env := newTestEnv(t, resolver.ModeStrict)
	srv := NewServer(env.server.resolver, nil, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/resolve?label=asthma", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.EventID)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resolutions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type panickingResolver struct{ ResolverInterface }

func (panickingResolver) Resolve(ctx context.Context, q resolver.Query) (lookup.Result, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	srv := NewServer(panickingResolver{}, nil, "", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resolve?label=x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{lookup.ErrNotFound, http.StatusNotFound, "not_found"},
		{lookup.ErrNoMatch, http.StatusNotFound, "no_match"},
		{lookup.ErrAmbiguous, http.StatusConflict, "ambiguous_source"},
		{&lookup.ServiceError{Service: "oxo", Err: errors.New("x")}, http.StatusServiceUnavailable, "service_unavailable"},
		{resolver.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
		{errors.New("other"), http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
