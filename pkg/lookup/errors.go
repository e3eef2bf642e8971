package lookup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an in-memory index or table has no entry for a key.
	ErrNotFound = errors.New("not found")

	// ErrNoMatch is returned when a remote service answered successfully without a candidate.
	ErrNoMatch = errors.New("no match")

	// ErrAmbiguous is returned when one key maps to more than one ontology node.
	ErrAmbiguous = errors.New("ambiguous source")

	// ErrServiceUnavailable is matched by every *ServiceError via errors.Is.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ServiceError describes a transport or protocol failure of a remote service.
// It means the question could not be answered, not that the answer is empty.
type ServiceError struct {
	Service    string // "ols", "oxo", "zooma"
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unavailable (HTTP %d): %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: unavailable: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrServiceUnavailable) hold for any ServiceError.
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// IsMiss reports whether err means "this step has no answer" and the cascade may move on.
func IsMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoMatch)
}

// Kind returns a stable short name for err, used in logs, metrics and API bodies.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrAmbiguous):
		return "ambiguous_source"
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
