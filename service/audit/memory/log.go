package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sentinelops/gatekeeper/internal/clock"
	"github.com/sentinelops/gatekeeper/internal/idgen"
	"github.com/sentinelops/gatekeeper/service/audit"
	"github.com/sentinelops/gatekeeper/service/dao"
)

// Log implements an in-memory audit.Log. Events are stored per decision so
// that ordering within a decision is preserved; QueryAll merges across
// decisions ordered by timestamp.
type Log struct {
	mu     sync.RWMutex
	events map[string][]*audit.Event
}

var _ audit.Log = (*Log)(nil)

// New creates an empty in-memory audit log.
func New() *Log {
	return &Log{events: make(map[string][]*audit.Event)}
}

// Append records an event, assigning ID, Seq and timestamp when absent.
func (l *Log) Append(_ context.Context, event *audit.Event) error {
	if event == nil {
		return dao.ErrNilEntity
	}
	if event.DecisionID == "" {
		return dao.ErrInvalidID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *event
	if stored.ID == "" {
		stored.ID = idgen.New()
	}
	if stored.At.IsZero() {
		stored.At = clock.Now()
	}
	stored.Seq = len(l.events[event.DecisionID]) + 1
	l.events[event.DecisionID] = append(l.events[event.DecisionID], &stored)

	// Reflect assigned fields back so the caller can reference them.
	event.ID = stored.ID
	event.Seq = stored.Seq
	event.At = stored.At
	return nil
}

// Query returns copies of the decision's events in append order.
func (l *Log) Query(_ context.Context, decisionID string) ([]*audit.Event, error) {
	if decisionID == "" {
		return nil, dao.ErrInvalidID
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[decisionID]
	out := make([]*audit.Event, 0, len(events))
	for _, event := range events {
		clone := *event
		out = append(out, &clone)
	}
	return out, nil
}

// QueryAll returns copies of all events passing the filter, ordered by time
// with Seq as tie-break.
func (l *Log) QueryAll(_ context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*audit.Event
	for _, events := range l.events {
		for _, event := range events {
			if !filter.Matches(event) {
				continue
			}
			clone := *event
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}
