package reports

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rmax-ai/ontoma/pkg/store"
)

// ResolutionReport lists recorded resolutions, oldest first.
type ResolutionReport struct {
	store ReportStore
}

// NewResolutionReport creates a new ResolutionReport generator.
func NewResolutionReport(s ReportStore) *ResolutionReport {
	return &ResolutionReport{store: s}
}

// Generate writes one CSV row per resolution in the requested window.
// Filters may carry "outcome" and "source".
func (r *ResolutionReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	table, err := newCSVTable([]string{"timestamp", "query", "system", "outcome", "source", "targets", "degraded", "error"})
	if err != nil {
		return nil, err
	}

	filter := store.EventFilter{
		From:    params.Start,
		To:      params.End,
		Outcome: params.Filters["outcome"],
		Source:  params.Filters["source"],
	}

	events, err := r.store.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	// QueryEvents returns newest first.
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		query := event.Query.Label
		if query == "" {
			query = event.Query.Code
		}
		err := table.row(
			event.TsEvent.UTC().Format(time.RFC3339),
			query,
			event.Query.System,
			event.Outcome,
			event.Source,
			strings.Join(event.Payload.TargetIDs, "|"),
			strings.Join(event.Payload.Degraded, "|"),
			event.Payload.Error,
		)
		if err != nil {
			return nil, err
		}
	}

	return table.reader()
}
