package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/resolver"
	"github.com/rmax-ai/ontoma/pkg/store"
)

// handleResolve runs the full cascade for a label or a coded identifier.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req = ResolveRequest{Label: q.Get("label"), Code: q.Get("code"), System: q.Get("system")}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json_body", "")
			return
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	query := resolver.Query{Label: req.Label, Code: req.Code, System: req.System}
	start := time.Now()
	res, err := s.resolver.Resolve(r.Context(), query)
	eventID := s.record(r.Context(), query, res, err, time.Since(start))

	if err != nil {
		s.writeLookupError(w, r, err, res.Degraded)
		return
	}
	s.writeJSON(w, r, http.StatusOK, ResolveResponse{Query: query, Result: res, EventID: eventID})
}

// record appends the resolution to the audit log. Failures are logged only.
func (s *Server) record(ctx context.Context, q resolver.Query, res lookup.Result, resErr error, elapsed time.Duration) string {
	if s.store == nil {
		return ""
	}

	evt := &store.Event{
		EventType: store.EventTypeResolutionSucceeded,
		TsEvent:   time.Now(),
		Query:     store.EventQuery{Label: q.Label, Code: q.Code, System: strings.ToUpper(q.System)},
		Outcome:   "resolved",
		Source:    string(res.Source),
		TraceID:   getTraceID(ctx),
		Payload: store.EventPayload{
			TargetIDs:  res.IDs,
			Label:      res.Label,
			Score:      res.Score,
			Distance:   res.Distance,
			DurationMs: elapsed.Milliseconds(),
		},
	}
	for _, d := range res.Degraded {
		evt.Payload.Degraded = append(evt.Payload.Degraded, string(d))
	}
	if resErr != nil {
		evt.EventType = store.EventTypeResolutionFailed
		_, evt.Outcome = errorStatus(resErr)
		evt.Source = ""
		evt.Payload.Error = resErr.Error()
	}

	if err := s.store.AppendEvent(ctx, evt); err != nil {
		s.logger.WithField("trace_id", evt.TraceID).WithError(err).Error("failed_to_append_event")
		return ""
	}
	return string(evt.EventID)
}

func (s *Server) handleLookupName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	q := r.URL.Query()
	ont := lookup.Ontology(strings.ToLower(q.Get("ontology")))
	if ont == "" {
		ont = lookup.OntologyEFO
	}
	name := q.Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "")
		return
	}

	id, err := s.resolver.LookupName(ont, name)
	if err != nil {
		s.writeLookupError(w, r, err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, NameResponse{Ontology: ont, Name: name, ID: id})
}

func (s *Server) handleLookupCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	q := r.URL.Query()
	system, code := q.Get("system"), q.Get("code")
	if system == "" {
		system = lookup.SystemOMIM
	}
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", "")
		return
	}

	ids, err := s.resolver.LookupCode(system, code)
	if err != nil {
		s.writeLookupError(w, r, err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, TargetsResponse{Key: code, System: strings.ToUpper(system), IDs: ids})
}

func (s *Server) handleLookupCurated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, http.StatusBadRequest, "missing_label", "")
		return
	}

	ids, err := s.resolver.LookupCurated(label)
	if err != nil {
		s.writeLookupError(w, r, err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, TargetsResponse{Key: label, IDs: ids})
}

func (s *Server) handleLookupFuzzy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, http.StatusBadRequest, "missing_label", "")
		return
	}

	cand, err := s.resolver.LookupFuzzy(r.Context(), label)
	if err != nil {
		s.writeLookupError(w, r, err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, FuzzyResponse{Label: label, Candidate: cand, ID: cand.ID()})
}

func (s *Server) handleLookupCrossReference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	q := r.URL.Query()
	system, code := q.Get("system"), q.Get("code")
	if system == "" || code == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields", "system and code are required")
		return
	}
	distance := 0
	if d := q.Get("distance"); d != "" {
		val, err := strconv.Atoi(d)
		if err != nil || val < 0 {
			writeError(w, http.StatusBadRequest, "invalid_distance", "")
			return
		}
		distance = val
	}

	refs, err := s.resolver.LookupCrossReference(r.Context(), system, code, distance)
	if err != nil {
		s.writeLookupError(w, r, err, nil)
		return
	}
	s.writeJSON(w, r, http.StatusOK, CrossReferenceResponse{
		System:   strings.ToUpper(system),
		Code:     code,
		Distance: distance,
		Mappings: refs,
	})
}
