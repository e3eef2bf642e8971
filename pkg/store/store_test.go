package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ontoma.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ontoma.db")

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should be created")

	var tableName string
	err = store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "events", tableName)

	var indexName string
	err = store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_events_outcome'").Scan(&indexName)
	require.NoError(t, err)
}

func TestNewStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ontoma.db")
	ctx := context.Background()

	s1, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.AppendEvent(ctx, &Event{EventType: EventTypeResolutionFailed, Outcome: "not_found"}))
	require.NoError(t, s1.Close())

	s2, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	events, err := s2.ReadRecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendAndGetEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	evt := &Event{
		EventType: EventTypeResolutionSucceeded,
		Query:     EventQuery{Label: "asthma"},
		Outcome:   "resolved",
		Source:    "exact-index",
		TraceID:   "trace-1",
		Payload: EventPayload{
			TargetIDs:  []string{"EFO_0000270"},
			Label:      "asthma",
			DurationMs: 3,
		},
	}
	require.NoError(t, s.AppendEvent(ctx, evt))
	require.NotEmpty(t, evt.EventID)
	assert.Equal(t, SchemaVersion, evt.SchemaVersion)

	got, err := s.GetEvent(ctx, evt.EventID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, evt.EventType, got.EventType)
	assert.Equal(t, "asthma", got.Query.Label)
	assert.Equal(t, "exact-index", got.Source)
	assert.Equal(t, "trace-1", got.TraceID)
	assert.Equal(t, []string{"EFO_0000270"}, got.Payload.TargetIDs)
	assert.WithinDuration(t, evt.TsEvent, got.TsEvent, time.Millisecond)

	missing, err := s.GetEvent(ctx, "no-such-event")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAppendEventDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	evt := &Event{EventID: "fixed", EventType: EventTypeResolutionFailed, Outcome: "not_found"}
	require.NoError(t, s.AppendEvent(ctx, evt))
	assert.Error(t, s.AppendEvent(ctx, &Event{EventID: "fixed", EventType: EventTypeResolutionFailed, Outcome: "not_found"}))
}

func TestQueryEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []*Event{
		{EventType: EventTypeResolutionSucceeded, TsEvent: base, Outcome: "resolved", Source: "exact-index", Query: EventQuery{Label: "asthma"}},
		{EventType: EventTypeResolutionSucceeded, TsEvent: base.Add(time.Minute), Outcome: "resolved", Source: "coded-mapping", Query: EventQuery{Code: "230650", System: "OMIM"}},
		{EventType: EventTypeResolutionFailed, TsEvent: base.Add(2 * time.Minute), Outcome: "not_found", Query: EventQuery{Label: "zzz"}},
		{EventType: EventTypeResolutionFailed, TsEvent: base.Add(3 * time.Minute), Outcome: "service_unavailable", Query: EventQuery{Label: "rare"}},
	}
	for _, evt := range seed {
		require.NoError(t, s.AppendEvent(ctx, evt))
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"all newest first", EventFilter{}, []string{"rare", "zzz", "", "asthma"}},
		{"limit", EventFilter{Limit: 2}, []string{"rare", "zzz"}},
		{"by type", EventFilter{EventTypes: []EventType{EventTypeResolutionSucceeded}}, []string{"", "asthma"}},
		{"by outcome", EventFilter{Outcome: "not_found"}, []string{"zzz"}},
		{"by source", EventFilter{Source: "exact-index"}, []string{"asthma"}},
		{"time window", EventFilter{From: base.Add(30 * time.Second), To: base.Add(150 * time.Second)}, []string{"zzz", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.QueryEvents(ctx, tt.filter)
			require.NoError(t, err)
			labels := make([]string, len(events))
			for i, e := range events {
				labels[i] = e.Query.Label
			}
			assert.Equal(t, tt.want, labels)
		})
	}
}

func TestCountOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, evt := range []*Event{
		{EventType: EventTypeResolutionSucceeded, Outcome: "resolved", Source: "exact-index"},
		{EventType: EventTypeResolutionSucceeded, Outcome: "resolved", Source: "exact-index"},
		{EventType: EventTypeResolutionFailed, Outcome: "not_found"},
	} {
		require.NoError(t, s.AppendEvent(ctx, evt))
	}

	counts, err := s.CountOutcomes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []OutcomeCount{
		{Outcome: "not_found", Source: "", Count: 1},
		{Outcome: "resolved", Source: "exact-index", Count: 2},
	}, counts)
}
