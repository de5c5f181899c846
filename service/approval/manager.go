package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sentinelops/gatekeeper/internal/clock"
	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/policy"
	"github.com/sentinelops/gatekeeper/service/audit"
	"github.com/sentinelops/gatekeeper/service/dao"
	"github.com/sentinelops/gatekeeper/service/messaging"
	qmem "github.com/sentinelops/gatekeeper/service/messaging/memory"
)

// Option customises the state machine service.
type Option func(*service)

// WithTTL sets the approval time-to-live. A Pending record may only expire
// once the TTL has elapsed since its creation. Zero disables the check – the
// caller then decides when a record is stale.
func WithTTL(ttl time.Duration) Option {
	return func(s *service) { s.ttl = ttl }
}

// WithQueue attaches an external transition event queue instead of the
// default in-memory one.
func WithQueue(queue messaging.Queue[Event]) Option {
	return func(s *service) { s.events = queue }
}

type service struct {
	decisionDAO dao.Service[string, decision.Record]
	auditLog    audit.Log
	engine      *policy.Engine
	events      messaging.Queue[Event]
	ttl         time.Duration

	// per-decision writer locks: the transition check-and-set must be atomic
	// so concurrent callers racing on the same record produce exactly one
	// winner.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the approval state machine on top of the supplied snapshot
// store, audit log and policy engine.
func New(decisionDAO dao.Service[string, decision.Record], auditLog audit.Log, engine *policy.Engine, options ...Option) Service {
	ret := &service{
		decisionDAO: decisionDAO,
		auditLog:    auditLog,
		engine:      engine,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.events == nil {
		ret.events = qmem.NewQueue[Event](qmem.DefaultConfig())
	}
	return ret
}

func (s *service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// evictLock drops the writer lock of a record that reached a terminal status.
// Terminal records accept no further writes, so a late caller racing on a
// fresh mutex still fails the status check under load.
func (s *service) evictLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

func (s *service) Submit(ctx context.Context, record *decision.Record) (*Receipt, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	record = record.Clone()
	record.Init()

	lock := s.lockFor(record.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.decisionDAO.Load(ctx, record.ID)
	switch {
	case err == nil && existing != nil:
		// Idempotent: report the existing record's current state.
		return &Receipt{Record: existing, Existing: true}, decision.ErrDuplicateDecision
	case err != nil && !errors.Is(err, dao.ErrNotFound):
		return nil, err
	}

	verdict, err := s.engine.Evaluate(record)
	if err != nil {
		return nil, err
	}
	if verdict.Outcome == policy.AutoApprove {
		record.Status = decision.StatusAutoApproved
	} else {
		record.Status = decision.StatusPending
	}

	event := &audit.Event{
		DecisionID: record.ID,
		To:         record.Status,
		Type:       record.Type,
		Priority:   record.Priority,
		Actor:      "policy",
		Reasoning:  verdict.Reason,
		Record:     record.Clone(),
	}
	if err = s.commit(ctx, record, event); err != nil {
		return nil, err
	}
	s.publish(ctx, TopicSubmitted, record, event)
	return &Receipt{Record: record, Verdict: verdict}, nil
}

func (s *service) RecordApproval(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error) {
	return s.decide(ctx, id, approver, approved, reasoning, false)
}

func (s *service) Override(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error) {
	return s.decide(ctx, id, approver, approved, reasoning, true)
}

func (s *service) decide(ctx context.Context, id, approver string, approved bool, reasoning string, override bool) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := record.Status == decision.StatusPending
	if override {
		// Overrides may also countermand a pending auto-approval before the
		// executor picks it up.
		allowed = allowed || record.Status == decision.StatusAutoApproved
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot decide %s in status %s", decision.ErrInvalidTransition, id, record.Status)
	}

	from := record.Status
	if approved {
		record.Status = decision.StatusApproved
	} else {
		record.Status = decision.StatusRejected
	}
	record.Approval = &decision.Approval{
		Approver:  approver,
		Reasoning: reasoning,
		DecidedAt: clock.Now(),
	}

	event := &audit.Event{
		DecisionID: id,
		From:       from,
		To:         record.Status,
		Type:       record.Type,
		Priority:   record.Priority,
		Actor:      approver,
		Reasoning:  reasoning,
	}
	if err = s.commit(ctx, record, event); err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		s.evictLock(id)
	}
	s.publish(ctx, TopicDecided, record, event)
	return record, nil
}

func (s *service) Expire(ctx context.Context, id string) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.expireLocked(ctx, id)
}

func (s *service) expireLocked(ctx context.Context, id string) (*decision.Record, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != decision.StatusPending {
		return nil, fmt.Errorf("%w: cannot expire %s in status %s", decision.ErrInvalidTransition, id, record.Status)
	}
	if s.ttl > 0 && clock.Now().Before(record.CreatedAt.Add(s.ttl)) {
		return nil, fmt.Errorf("%w: %s expires at %s", ErrTTLNotElapsed, id, record.CreatedAt.Add(s.ttl))
	}

	record.Status = decision.StatusExpired
	event := &audit.Event{
		DecisionID: id,
		From:       decision.StatusPending,
		To:         decision.StatusExpired,
		Type:       record.Type,
		Priority:   record.Priority,
		Actor:      audit.SystemActor,
		Reasoning:  fmt.Sprintf("no guardian response within ttl %s; resubmission required", s.ttl),
	}
	if err = s.commit(ctx, record, event); err != nil {
		return nil, err
	}
	s.evictLock(id)
	s.publish(ctx, TopicExpired, record, event)
	return record, nil
}

func (s *service) ExpireStale(ctx context.Context) ([]*decision.Record, error) {
	if s.ttl <= 0 {
		return nil, nil
	}
	pending, err := s.List(ctx, decision.StatusPending)
	if err != nil {
		return nil, err
	}
	var expired []*decision.Record
	deadline := clock.Now()
	for _, record := range pending {
		if record.CreatedAt.Add(s.ttl).After(deadline) {
			continue
		}
		updated, err := s.Expire(ctx, record.ID)
		if err != nil {
			// A racing approval may have won; skip and continue the sweep.
			if errors.Is(err, decision.ErrInvalidTransition) || errors.Is(err, ErrTTLNotElapsed) {
				continue
			}
			return expired, err
		}
		expired = append(expired, updated)
	}
	return expired, nil
}

func (s *service) MarkExecuted(ctx context.Context, id string, success bool, detail string) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Status.Executable() {
		return nil, fmt.Errorf("%w: cannot mark %s executed in status %s", decision.ErrInvalidTransition, id, record.Status)
	}

	from := record.Status
	if success {
		record.Status = decision.StatusExecuted
	} else {
		record.Status = decision.StatusFailed
	}
	if detail == "" {
		if success {
			detail = "execution completed"
		} else {
			detail = "execution failed"
		}
	}
	event := &audit.Event{
		DecisionID: id,
		From:       from,
		To:         record.Status,
		Type:       record.Type,
		Priority:   record.Priority,
		Actor:      "executor",
		Reasoning:  detail,
	}
	if err = s.commit(ctx, record, event); err != nil {
		return nil, err
	}
	s.evictLock(id)
	s.publish(ctx, TopicExecuted, record, event)
	return record, nil
}

func (s *service) Get(ctx context.Context, id string) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, statuses ...decision.Status) ([]*decision.Record, error) {
	if len(statuses) == 0 {
		return s.decisionDAO.List(ctx)
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return s.decisionDAO.List(ctx, dao.NewParameter("Status", values...))
}

// Rebuild reconstructs the snapshot store from the audit log. The creation
// event carries the full record; subsequent events replay the status and the
// approval sub-record. Snapshots with no audit trail are deleted – the log is
// the source of truth and anything it does not vouch for is stale.
func (s *service) Rebuild(ctx context.Context) error {
	events, err := s.auditLog.QueryAll(ctx, nil)
	if err != nil {
		return err
	}
	byDecision := make(map[string][]*audit.Event)
	for _, event := range events {
		byDecision[event.DecisionID] = append(byDecision[event.DecisionID], event)
	}
	snapshots, err := s.decisionDAO.List(ctx)
	if err != nil {
		return err
	}
	for _, snapshot := range snapshots {
		if _, ok := byDecision[snapshot.ID]; ok {
			continue
		}
		if err = s.decisionDAO.Delete(ctx, snapshot.ID); err != nil {
			return err
		}
	}
	for id, chain := range byDecision {
		var record *decision.Record
		for _, event := range chain {
			if event.Record != nil {
				record = event.Record.Clone()
				break
			}
		}
		if record == nil {
			return fmt.Errorf("audit: no creation event for %s", id)
		}
		status, err := audit.Replay(ctx, s.auditLog, id)
		if err != nil {
			return err
		}
		record.Status = status
		for _, event := range chain {
			if event.To == decision.StatusApproved || event.To == decision.StatusRejected {
				record.Approval = &decision.Approval{
					Approver:  event.Actor,
					Reasoning: event.Reasoning,
					DecidedAt: event.At,
				}
			}
		}
		if err = s.decisionDAO.Save(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Queue() messaging.Queue[Event] { return s.events }

// load maps the DAO not-found error onto the lifecycle taxonomy.
func (s *service) load(ctx context.Context, id string) (*decision.Record, error) {
	record, err := s.decisionDAO.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", decision.ErrUnknownDecision, id)
		}
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", decision.ErrUnknownDecision, id)
	}
	return record, nil
}

// commit appends the audit event and then saves the snapshot. The audit log
// is the source of truth: when the snapshot save fails the event still stands
// and the retried transition coalesces onto it instead of appending a
// duplicate, so a Submit or decide retried after a storage outage leaves a
// replayable chain.
func (s *service) commit(ctx context.Context, record *decision.Record, event *audit.Event) error {
	events, err := s.auditLog.Query(ctx, event.DecisionID)
	if err != nil {
		return err
	}
	if n := len(events); n > 0 {
		if last := events[n-1]; last.From == event.From && last.To == event.To {
			// The event landed on an earlier attempt; adopt it.
			*event = *last
			if last.Record != nil {
				record.CreatedAt = last.Record.CreatedAt
			}
			if record.Approval != nil && (event.To == decision.StatusApproved || event.To == decision.StatusRejected) {
				record.Approval = &decision.Approval{
					Approver:  event.Actor,
					Reasoning: event.Reasoning,
					DecidedAt: event.At,
				}
			}
			return s.decisionDAO.Save(ctx, record)
		}
	}
	if err := s.auditLog.Append(ctx, event); err != nil {
		return err
	}
	return s.decisionDAO.Save(ctx, record)
}

func (s *service) publish(ctx context.Context, topic string, record *decision.Record, event *audit.Event) {
	_ = s.events.Publish(ctx, &Event{Topic: topic, Record: record.Clone(), Audit: event})
}

var _ Service = (*service)(nil)
