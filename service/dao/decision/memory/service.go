package memory

import (
	"context"
	"sync"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/dao"
)

// Service implements an in-memory decision snapshot storage. All operations
// are thread-safe and return **copies** of the underlying objects to prevent
// data races when callers mutate the returned instances.
type Service struct {
	records map[string]*decision.Record
	mux     sync.RWMutex
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, decision.Record] = (*Service)(nil)

// Save persists (a clone of) the supplied record.
func (s *Service) Save(_ context.Context, r *decision.Record) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if r.ID == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	s.records[r.ID] = r.Clone()
	return nil
}

// Load retrieves a copy of the record or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mux.RLock()
	r, ok := s.records[id]
	s.mux.RUnlock()

	if !ok {
		return nil, dao.ErrNotFound
	}
	return r.Clone(), nil
}

// Delete removes a record.
func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.records[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// List returns copies of all records, optionally filtered by a Status
// parameter (single value or a set).
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*decision.Record, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*decision.Record, 0, len(s.records))
	for _, r := range s.records {
		if !matchesStatus(r, parameters) {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func matchesStatus(r *decision.Record, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != "Status" {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			return string(r.Status) == actual
		case []string:
			for _, status := range actual {
				if string(r.Status) == status {
					return true
				}
			}
			return false
		}
	}
	return true
}

// New constructor.
func New() *Service {
	return &Service{records: map[string]*decision.Record{}}
}
