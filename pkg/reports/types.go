package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/ontoma/pkg/store"
)

type ReportType string

const (
	ReportTypeResolutions ReportType = "resolutions"
	ReportTypeOutcomes    ReportType = "outcomes"
)

type ReportParams struct {
	Start   time.Time
	End     time.Time
	Filters map[string]string
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	CountOutcomes(ctx context.Context) ([]store.OutcomeCount, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
