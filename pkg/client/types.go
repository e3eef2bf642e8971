package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
)

// Query is either a free-text Label or a Code of a coding System.
type Query struct {
	// Label is a disease or phenotype label, e.g. "asthma".
	Label string `json:"label,omitempty"`
	// Code is a coded identifier, e.g. "230650".
	Code string `json:"code,omitempty"`
	// System is the coding system of Code, e.g. "OMIM" or "ICD9CM".
	System string `json:"system,omitempty"`
}

// Resolution is the daemon answer for a resolved query.
type Resolution struct {
	Query   Query         `json:"query"`
	Result  lookup.Result `json:"result"`
	EventID string        `json:"event_id,omitempty"`
}

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
}

// Event is one recorded resolution from the daemon audit log.
type Event struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	TsEvent   time.Time    `json:"ts_event"`
	Query     Query        `json:"query"`
	Outcome   string       `json:"outcome"`
	Source    string       `json:"source,omitempty"`
	TraceID   string       `json:"trace_id,omitempty"`
	Payload   EventPayload `json:"payload"`
}

type EventPayload struct {
	TargetIDs  []string `json:"target_ids,omitempty"`
	Label      string   `json:"label,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Distance   int      `json:"distance,omitempty"`
	Degraded   []string `json:"degraded,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// APIError is a non-2xx daemon answer. errors.Is matches it against the
// lookup sentinels, so callers can tell a miss from an outage.
type APIError struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"error"`
	Message    string          `json:"message,omitempty"`
	Degraded   []lookup.Source `json:"degraded,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ontoma: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ontoma: %s (HTTP %d)", e.Code, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return lookup.ErrNotFound
	case "no_match":
		return lookup.ErrNoMatch
	case "ambiguous_source":
		return lookup.ErrAmbiguous
	case "service_unavailable":
		return lookup.ErrServiceUnavailable
	}
	return nil
}

// ErrDaemonUnreachable is returned when the daemon cannot be contacted.
var ErrDaemonUnreachable = errors.New("daemon unreachable")
