package store

import "time"

// EventType represents the kind of event.
type EventType string

const (
	EventTypeResolutionSucceeded EventType = "resolution_succeeded"
	EventTypeResolutionFailed    EventType = "resolution_failed"
)

// SchemaVersion of the event payload.
const SchemaVersion = 1

// EventID is a unique identifier for an event.
type EventID string

// Event is one recorded cascade resolution.
type Event struct {
	EventID       EventID      `json:"event_id"`
	EventType     EventType    `json:"event_type"`
	SchemaVersion int          `json:"schema_version"`
	TsEvent       time.Time    `json:"ts_event"`
	TsIngest      time.Time    `json:"ts_ingest"`
	Query         EventQuery   `json:"query"`
	Outcome       string       `json:"outcome"` // resolved, not_found, service_unavailable, invalid
	Source        string       `json:"source,omitempty"`
	TraceID       string       `json:"trace_id,omitempty"`
	Payload       EventPayload `json:"payload"`
}

// EventQuery is the input of the resolution.
type EventQuery struct {
	Label  string `json:"label,omitempty"`
	Code   string `json:"code,omitempty"`
	System string `json:"system,omitempty"`
}

// EventPayload holds the details stored as JSON.
type EventPayload struct {
	TargetIDs  []string `json:"target_ids,omitempty"`
	Label      string   `json:"label,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Distance   int      `json:"distance,omitempty"`
	Degraded   []string `json:"degraded,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []EventType
	Outcome    string
	Source     string
	Limit      int
}

// OutcomeCount is the number of events per outcome.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Source  string `json:"source"`
	Count   int    `json:"count"`
}
