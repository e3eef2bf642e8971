package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/rmax-ai/ontoma/pkg/client"
	"github.com/rmax-ai/ontoma/pkg/lookup"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want client.Query
		ok   bool
	}{
		{"asthma", client.Query{Label: "asthma"}, true},
		{"  Asthma ", client.Query{Label: "Asthma"}, true},
		{"OMIM:230650", client.Query{System: "OMIM", Code: "230650"}, true},
		{"ICD9CM:263.2", client.Query{System: "ICD9CM", Code: "263.2"}, true},
		{"type 2: diabetes", client.Query{Label: "type 2: diabetes"}, true},
		{"omim:230650", client.Query{Label: "omim:230650"}, true},
		{"OMIM:", client.Query{Label: "OMIM:"}, true},
		{"   ", client.Query{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseQuery(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]client.Event{
		{
			TsEvent: time.Now(),
			Query:   client.Query{Label: "asthma"},
			Outcome: "resolved",
			Source:  "exact-index",
			Payload: client.EventPayload{TargetIDs: []string{"EFO:0000270"}},
		},
		{
			TsEvent: time.Now(),
			Query:   client.Query{System: "OMIM", Code: "999999"},
			Outcome: "not_found",
		},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "EFO:0000270")
	assert.Contains(t, lines[1], "OMIM:999999")
	assert.Contains(t, lines[1], "not_found")
}

func TestRenderResult(t *testing.T) {
	assert.Contains(t, renderResult(nil), "Type a term")

	ok := renderResult(&resolvedMsg{
		query: client.Query{Label: "asthma"},
		res: client.Resolution{Result: lookup.Result{
			IDs:      []string{"EFO:0000270"},
			Source:   lookup.SourceFuzzyService,
			Degraded: []lookup.Source{lookup.SourceHighConfidence},
		}},
	})
	assert.Contains(t, ok, "fuzzy-service")
	assert.Contains(t, ok, "EFO:0000270")
	assert.Contains(t, ok, "skipped")

	failed := renderResult(&resolvedMsg{
		query: client.Query{Label: "zzz"},
		err:   &client.APIError{StatusCode: 404, Code: "no_match"},
	})
	assert.Contains(t, failed, "no_match")
	assert.True(t, errors.Is(&client.APIError{Code: "no_match"}, lookup.ErrNoMatch))
}

func TestUpdateEnterStartsResolution(t *testing.T) {
	m := initialModel(client.NewClient("http://127.0.0.1:1"))
	m.input.SetValue("asthma")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	nm := next.(model)
	assert.True(t, nm.pending)
	assert.Empty(t, nm.input.Value())
	assert.NotNil(t, cmd)

	// A second enter while a resolution is in flight is ignored.
	nm.input.SetValue("copd")
	again, cmd := nm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "copd", again.(model).input.Value())

	done, _ := nm.Update(resolvedMsg{query: client.Query{Label: "asthma"}, err: lookup.ErrNoMatch})
	assert.False(t, done.(model).pending)
	assert.NotNil(t, done.(model).last)
}
