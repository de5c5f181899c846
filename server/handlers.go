package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/gatekeeper"
	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/approval"
	"github.com/sentinelops/gatekeeper/service/audit"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain sentinels onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, decision.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, decision.ErrUnknownDecision):
		status = http.StatusNotFound
	case errors.Is(err, decision.ErrDuplicateDecision),
		errors.Is(err, decision.ErrInvalidTransition),
		errors.Is(err, approval.ErrTTLNotElapsed):
		status = http.StatusConflict
	case errors.Is(err, decision.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	record := &decision.Record{}
	if err := json.NewDecoder(r.Body).Decode(record); err != nil {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	result, err := s.service.Submit(r.Context(), record)
	if err != nil {
		if errors.Is(err, decision.ErrDuplicateDecision) && result != nil {
			// Idempotent resubmission returns the existing record.
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: err.Error()})
		return
	}
	records, err := s.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusNotFound, &errorResponse{Error: decision.ErrUnknownDecision.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type verdictRequest struct {
	Approver  string `json:"approver"`
	Approved  bool   `json:"approved"`
	Reasoning string `json:"reasoning,omitempty"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.service.RecordApproval)
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.service.Override)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error)) {
	req := &verdictRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "approver is required"})
		return
	}
	record, err := apply(r.Context(), chi.URLParam(r, "id"), req.Approver, req.Approved, req.Reasoning)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Expire(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type executedRequest struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) handleExecuted(w http.ResponseWriter, r *http.Request) {
	req := &executedRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	record, err := s.service.MarkExecuted(r.Context(), chi.URLParam(r, "id"), req.Success, req.Detail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &errorResponse{Error: err.Error()})
		return
	}
	events, err := s.service.Events(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.service.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func listFilter(r *http.Request) (*gatekeeper.ListFilter, error) {
	filter := &gatekeeper.ListFilter{}
	for _, v := range splitParam(r, "type") {
		filter.Types = append(filter.Types, decision.Type(v))
	}
	for _, v := range splitParam(r, "priority") {
		filter.Priorities = append(filter.Priorities, decision.Priority(v))
	}
	for _, v := range splitParam(r, "status") {
		filter.Statuses = append(filter.Statuses, decision.Status(v))
	}
	var err error
	if filter.Since, err = timeParam(r, "since"); err != nil {
		return nil, err
	}
	if filter.Until, err = timeParam(r, "until"); err != nil {
		return nil, err
	}
	return filter, nil
}

func auditFilter(r *http.Request) (*audit.Filter, error) {
	filter := &audit.Filter{}
	for _, v := range splitParam(r, "type") {
		filter.Types = append(filter.Types, decision.Type(v))
	}
	for _, v := range splitParam(r, "priority") {
		filter.Priorities = append(filter.Priorities, decision.Priority(v))
	}
	for _, v := range splitParam(r, "status") {
		filter.Statuses = append(filter.Statuses, decision.Status(v))
	}
	var err error
	if filter.Since, err = timeParam(r, "since"); err != nil {
		return nil, err
	}
	if filter.Until, err = timeParam(r, "until"); err != nil {
		return nil, err
	}
	return filter, nil
}

func splitParam(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + ": expected RFC3339 timestamp")
	}
	return ts, nil
}
