package gatekeeper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/policy"
	"github.com/sentinelops/gatekeeper/service/approval"
	"github.com/sentinelops/gatekeeper/service/audit"
	amemory "github.com/sentinelops/gatekeeper/service/audit/memory"
	"github.com/sentinelops/gatekeeper/service/dao"
	dmemory "github.com/sentinelops/gatekeeper/service/dao/decision/memory"
	"github.com/sentinelops/gatekeeper/service/formatter"
	"github.com/sentinelops/gatekeeper/service/messaging"
	mmemory "github.com/sentinelops/gatekeeper/service/messaging/memory"
	"github.com/sentinelops/gatekeeper/service/tracker"
	tmemory "github.com/sentinelops/gatekeeper/service/tracker/memory"
	"github.com/sentinelops/gatekeeper/tracing"
)

// Service wires the policy engine, approval state machine, audit log,
// formatter and tracker publisher into the decision submission, approval and
// query surfaces.
type Service struct {
	config       *Config
	engine       *policy.Engine
	decisionDAO  dao.Service[string, decision.Record]
	auditLog     audit.Log
	approvals    approval.Service
	publisher    tracker.Publisher
	publishQueue messaging.Queue[tracker.Publication]

	// best-effort map of tracker references per decision so status updates
	// can be reflected on the external request.
	refMu sync.RWMutex
	refs  map[string]*tracker.Reference
}

// SubmitResult is the outcome of a decision submission.
type SubmitResult struct {
	Record  *decision.Record   `json:"record"`
	Verdict *policy.Verdict    `json:"verdict,omitempty"`
	Tracker *tracker.Reference `json:"tracker,omitempty"`

	// Existing is set when the decision ID had already been submitted.
	Existing bool `json:"existing,omitempty"`
}

// New creates a gatekeeper service. Unset collaborators default to in-memory
// implementations.
func New(options ...Option) *Service {
	ret := &Service{refs: make(map[string]*tracker.Reference)}
	ret.init(options)
	return ret
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.engine = policy.New(s.config.Policy)
	s.approvals = approval.New(s.decisionDAO, s.auditLog, s.engine,
		approval.WithTTL(s.config.ApprovalTTL))
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.config.Policy == nil {
		s.config.Policy = policy.DefaultConfig()
	}
	if s.decisionDAO == nil {
		s.decisionDAO = dmemory.New()
	}
	if s.auditLog == nil {
		s.auditLog = amemory.New()
	}
	if s.publisher == nil {
		s.publisher = tmemory.New()
	}
	if s.publishQueue == nil {
		s.publishQueue = mmemory.NewQueue[tracker.Publication](mmemory.DefaultConfig())
	}
}

// Start launches the background workers: the tracker retry worker and the
// TTL expiry sweeper. Both stop when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	tracker.NewRetryWorker(s.publisher, s.publishQueue,
		tracker.WithOnPublished(func(record *decision.Record, ref *tracker.Reference) {
			s.refMu.Lock()
			s.refs[record.ID] = ref
			s.refMu.Unlock()
			// Reflect any transition that happened while the publication sat
			// in the retry queue.
			current, err := s.approvals.Get(ctx, record.ID)
			if err != nil {
				log.Printf("gatekeeper: tracker catch-up load failed for %s: %v", record.ID, err)
				return
			}
			if current.Status != record.Status {
				s.updateTracker(ctx, current)
			}
		})).Start(ctx)

	if s.config.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.config.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					expired, err := s.approvals.ExpireStale(ctx)
					if err != nil {
						log.Printf("gatekeeper: expiry sweep failed: %v", err)
						continue
					}
					for _, record := range expired {
						s.updateTracker(ctx, record)
					}
				}
			}
		}()
	}
}

// Submit evaluates and registers a decision record. Escalated records are
// rendered and published to the tracker; a publish failure is non-fatal and
// retried in the background.
func (s *Service) Submit(ctx context.Context, record *decision.Record) (*SubmitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "gatekeeper.Submit", "INTERNAL")
	receipt, err := s.approvals.Submit(ctx, record)
	if err != nil {
		if errors.Is(err, decision.ErrDuplicateDecision) && receipt != nil {
			// Idempotent: surface the existing record's current state.
			tracing.EndSpan(span, nil)
			return &SubmitResult{Record: receipt.Record, Existing: true}, err
		}
		tracing.EndSpan(span, err)
		return nil, err
	}
	span.WithAttributes(map[string]string{
		"decision.id":     receipt.Record.ID,
		"decision.status": string(receipt.Record.Status),
	})

	result := &SubmitResult{Record: receipt.Record, Verdict: receipt.Verdict}
	if receipt.Record.Status == decision.StatusPending {
		result.Tracker = s.escalate(ctx, receipt.Record)
	}
	tracing.EndSpan(span, nil)
	return result, nil
}

// escalate renders the record and publishes it to the tracker. On
// ErrPublishUnavailable the publication is queued for retry; any other error
// is logged and dropped – publication never blocks the lifecycle.
func (s *Service) escalate(ctx context.Context, record *decision.Record) *tracker.Reference {
	body := formatter.Markdown(record)
	ref, err := s.publisher.Publish(ctx, record, body)
	if err != nil {
		if errors.Is(err, decision.ErrPublishUnavailable) {
			if qErr := s.publishQueue.Publish(ctx, &tracker.Publication{Record: record.Clone(), Body: body}); qErr != nil {
				log.Printf("gatekeeper: failed to queue publication for %s: %v", record.ID, qErr)
			}
		} else {
			log.Printf("gatekeeper: publish failed for %s: %v", record.ID, err)
		}
		return nil
	}
	s.refMu.Lock()
	s.refs[record.ID] = ref
	s.refMu.Unlock()
	return ref
}

// RecordApproval applies a guardian's verdict to a Pending decision.
func (s *Service) RecordApproval(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "gatekeeper.RecordApproval", "INTERNAL")
	record, err := s.approvals.RecordApproval(ctx, id, approver, approved, reasoning)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	s.updateTracker(ctx, record)
	return record, nil
}

// Override forces a verdict bypassing the normal flow; still audited.
func (s *Service) Override(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error) {
	record, err := s.approvals.Override(ctx, id, approver, approved, reasoning)
	if err != nil {
		return nil, err
	}
	s.updateTracker(ctx, record)
	return record, nil
}

// Expire transitions a stale Pending decision to Expired.
func (s *Service) Expire(ctx context.Context, id string) (*decision.Record, error) {
	record, err := s.approvals.Expire(ctx, id)
	if err != nil {
		return nil, err
	}
	s.updateTracker(ctx, record)
	return record, nil
}

// MarkExecuted records the executor's outcome for an approved decision.
func (s *Service) MarkExecuted(ctx context.Context, id string, success bool, detail string) (*decision.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "gatekeeper.MarkExecuted", "INTERNAL")
	record, err := s.approvals.MarkExecuted(ctx, id, success, detail)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	s.updateTracker(ctx, record)
	return record, nil
}

func (s *Service) updateTracker(ctx context.Context, record *decision.Record) {
	s.refMu.RLock()
	ref, ok := s.refs[record.ID]
	s.refMu.RUnlock()
	if !ok {
		return
	}
	if err := s.publisher.Update(ctx, ref, record.Status); err != nil {
		log.Printf("gatekeeper: tracker update failed for %s: %v", record.ID, err)
	}
}

// Get returns the current snapshot of a decision.
func (s *Service) Get(ctx context.Context, id string) (*decision.Record, error) {
	return s.approvals.Get(ctx, id)
}

// ListFilter narrows List results. Zero-value fields match everything.
type ListFilter struct {
	Types      []decision.Type
	Priorities []decision.Priority
	Statuses   []decision.Status
	Since      time.Time
	Until      time.Time
}

func (f *ListFilter) matches(record *decision.Record) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !contains(f.Types, record.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, record.Priority) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, record.Status) {
		return false
	}
	if !f.Since.IsZero() && record.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && record.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func contains[T comparable](haystack []T, needle T) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}

// List returns decision snapshots passing the filter.
func (s *Service) List(ctx context.Context, filter *ListFilter) ([]*decision.Record, error) {
	records, err := s.approvals.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*decision.Record, 0, len(records))
	for _, record := range records {
		if filter.matches(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// History returns the audit trail of a decision.
func (s *Service) History(ctx context.Context, id string) ([]*audit.Event, error) {
	return s.auditLog.Query(ctx, id)
}

// Events returns audit events across decisions, filtered.
func (s *Service) Events(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	return s.auditLog.QueryAll(ctx, filter)
}

// Approvals exposes the underlying state machine, e.g. for wiring a healing
// controller.
func (s *Service) Approvals() approval.Service { return s.approvals }

// AuditLog exposes the audit trail.
func (s *Service) AuditLog() audit.Log { return s.auditLog }

// Engine exposes the policy engine.
func (s *Service) Engine() *policy.Engine { return s.engine }
