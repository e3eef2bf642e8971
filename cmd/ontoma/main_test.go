package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/resolve":
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body)
			if strings.Contains(body.String(), "zzz") {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"not_found","message":"zzz: not found"}`))
				return
			}
			if strings.Contains(body.String(), `"code":"230650"`) {
				w.Write([]byte(`{"query":{"code":"230650","system":"OMIM"},"result":{"ids":["http://www.orpha.net/ORDO/Orphanet_354","http://www.orpha.net/ORDO/Orphanet_79257"],"source":"coded-mapping"}}`))
				return
			}
			w.Write([]byte(`{"query":{"label":"asthma"},"result":{"ids":["EFO:0000270"],"source":"exact-index","label":"asthma"}}`))
		case "/v1/lookup/name":
			w.Write([]byte(`{"id":"HP:0000118"}`))
		case "/v1/lookup/code":
			w.Write([]byte(`{"ids":["a","b"]}`))
		case "/v1/resolutions":
			w.Write([]byte(`[{"event_id":"e1","ts_event":"2024-03-01T12:00:00Z","query":{"label":"asthma"},"outcome":"resolved","source":"exact-index","payload":{"target_ids":["EFO:0000270"],"duration_ms":1}}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func run(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--endpoint", endpoint}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	ts := fakeDaemon(t)

	out, err := run(t, ts.URL, "resolve", "asthma")
	require.NoError(t, err)
	assert.Contains(t, out, "source:  exact-index")
	assert.Contains(t, out, "target:  EFO:0000270")

	out, err = run(t, ts.URL, "resolve", "--code", "230650", "--system", "OMIM")
	require.NoError(t, err)
	assert.Contains(t, out, "Orphanet_79257")

	out, err = run(t, ts.URL, "--json", "resolve", "asthma")
	require.NoError(t, err)
	assert.Contains(t, out, `"source": "exact-index"`)

	_, err = run(t, ts.URL, "resolve", "zzz")
	assert.ErrorContains(t, err, "no mapping found")
}

func TestResolveCommandValidation(t *testing.T) {
	ts := fakeDaemon(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nothing", []string{"resolve"}, "label argument or --code"},
		{"both", []string{"resolve", "asthma", "--code", "1"}, "not both"},
		{"code without system", []string{"resolve", "--code", "1"}, "--code requires --system"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, ts.URL, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLookupCommands(t *testing.T) {
	ts := fakeDaemon(t)

	out, err := run(t, ts.URL, "lookup", "name", "--ontology", "hp", "Phenotypic abnormality")
	require.NoError(t, err)
	assert.Equal(t, "HP:0000118\n", out)

	out, err = run(t, ts.URL, "lookup", "code", "230650")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestHistoryCommand(t *testing.T) {
	ts := fakeDaemon(t)

	out, err := run(t, ts.URL, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "QUERY")
	assert.Contains(t, out, "asthma")
	assert.Contains(t, out, "EFO:0000270")
}

func TestDaemonUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	endpoint := ts.URL
	ts.Close()

	_, err := run(t, endpoint, "history")
	assert.ErrorContains(t, err, "is ontoma-d running?")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "http://unused", "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
