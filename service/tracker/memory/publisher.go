package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/tracker"
)

// Issue is a published request as held by the in-memory tracker.
type Issue struct {
	Reference tracker.Reference
	Record    *decision.Record
	Body      string
	Status    decision.Status
}

// Publisher is an in-memory tracker adapter used in tests and local runs. It
// is idempotent on decision ID and can simulate outages via SetAvailable.
type Publisher struct {
	mu        sync.Mutex
	issues    map[string]*Issue // keyed by decision ID
	available bool
	nextID    int
}

var _ tracker.Publisher = (*Publisher)(nil)

// New creates an available in-memory publisher.
func New() *Publisher {
	return &Publisher{issues: make(map[string]*Issue), available: true}
}

// SetAvailable toggles simulated tracker reachability.
func (p *Publisher) SetAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = available
}

// Publish registers the request, re-using any issue already created for the
// same decision ID.
func (p *Publisher) Publish(_ context.Context, record *decision.Record, body string) (*tracker.Reference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil, fmt.Errorf("%w: tracker offline", decision.ErrPublishUnavailable)
	}
	if existing, ok := p.issues[record.ID]; ok {
		return &existing.Reference, nil
	}
	p.nextID++
	issue := &Issue{
		Reference: tracker.Reference{
			ID:  fmt.Sprintf("%d", p.nextID),
			URL: fmt.Sprintf("memory://issues/%d", p.nextID),
		},
		Record: record.Clone(),
		Body:   body,
		Status: record.Status,
	}
	p.issues[record.ID] = issue
	return &issue.Reference, nil
}

// Update reflects a status change on the matching issue.
func (p *Publisher) Update(_ context.Context, ref *tracker.Reference, status decision.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return fmt.Errorf("%w: tracker offline", decision.ErrPublishUnavailable)
	}
	for _, issue := range p.issues {
		if issue.Reference.ID == ref.ID {
			issue.Status = status
			return nil
		}
	}
	return fmt.Errorf("tracker: unknown reference %s", ref.ID)
}

// Issue returns the issue published for a decision ID, if any.
func (p *Publisher) Issue(decisionID string) (*Issue, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	issue, ok := p.issues[decisionID]
	return issue, ok
}

// Size returns the number of published issues.
func (p *Publisher) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.issues)
}
