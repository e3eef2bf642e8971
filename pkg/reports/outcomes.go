package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
)

// OutcomeReport summarises resolutions by outcome and answering source.
type OutcomeReport struct {
	store ReportStore
}

// NewOutcomeReport creates a new OutcomeReport generator.
func NewOutcomeReport(s ReportStore) *OutcomeReport {
	return &OutcomeReport{store: s}
}

func (r *OutcomeReport) Generate(ctx context.Context, _ ReportParams) (io.Reader, error) {
	table, err := newCSVTable([]string{"outcome", "source", "count"})
	if err != nil {
		return nil, err
	}

	counts, err := r.store.CountOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	for _, c := range counts {
		if err := table.row(c.Outcome, c.Source, strconv.Itoa(c.Count)); err != nil {
			return nil, err
		}
	}

	return table.reader()
}
