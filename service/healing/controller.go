package healing

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/approval"
)

// Health is the controller's view of the target.
type Health string

const (
	Healthy   Health = "healthy"
	Unhealthy Health = "unhealthy"
	Repairing Health = "repairing"

	// Fatal means the retry budget is exhausted; automatic repair has ceased
	// and a critical decision awaits human intervention.
	Fatal Health = "fatal"
)

// CheckFunc probes the target. It returns the observed health and a
// human-readable detail used in decision reasoning.
type CheckFunc func(ctx context.Context) (healthy bool, detail string)

// Executor performs the approved repair action.
type Executor interface {
	Execute(ctx context.Context, record *decision.Record) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, record *decision.Record) error

func (f ExecutorFunc) Execute(ctx context.Context, record *decision.Record) error {
	return f(ctx, record)
}

// Gate is the slice of the approval state machine the controller needs.
// approval.Service satisfies it.
type Gate interface {
	Submit(ctx context.Context, record *decision.Record) (*approval.Receipt, error)
	Get(ctx context.Context, id string) (*decision.Record, error)
	MarkExecuted(ctx context.Context, id string, success bool, detail string) (*decision.Record, error)
}

// Config bounds the repair loop.
type Config struct {
	// Target names the health target; it becomes the decision source.
	Target string `json:"target" yaml:"target"`

	// RetryLimit is the number of repair retries after the first failed
	// attempt before the controller declares Fatal.
	RetryLimit int `json:"retryLimit" yaml:"retryLimit"`

	// Backoff is the sleep between attempts; when Exponential is set it
	// doubles after every failed attempt.
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
	Exponential bool          `json:"exponential" yaml:"exponential"`

	// Interval is the probe polling period for Run.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// ExecTimeout bounds a single executor invocation. A timeout marks the
	// decision Failed; it never leaves the record in an approved state.
	ExecTimeout time.Duration `json:"execTimeout" yaml:"execTimeout"`

	// Confidence assigned to repair decisions; the policy table decides
	// whether that is enough to auto-approve.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// BlastRadius describes the impact scope recorded on repair decisions.
	BlastRadius string `json:"blastRadius" yaml:"blastRadius"`
}

// DefaultConfig returns the stock healing configuration: one retry, fixed
// short backoff.
func DefaultConfig() Config {
	return Config{
		Target:      "primary",
		RetryLimit:  1,
		Backoff:     time.Second,
		Interval:    10 * time.Second,
		ExecTimeout: time.Minute,
		Confidence:  0.9,
		BlastRadius: "single service",
	}
}

// Controller tracks one health target through Healthy/Unhealthy/Repairing and
// drives approved repairs.
type Controller struct {
	config   Config
	gate     Gate
	check    CheckFunc
	executor Executor

	mu      sync.RWMutex
	state   Health
	retries int

	// pending holds the ID of a repair decision escalated to a guardian; no
	// new repair is submitted while it awaits a verdict.
	pending string
}

// New creates a controller in the Healthy state.
func New(config Config, gate Gate, check CheckFunc, executor Executor) *Controller {
	if config.RetryLimit < 0 {
		config.RetryLimit = 0
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultConfig().Backoff
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = DefaultConfig().ExecTimeout
	}
	if config.Confidence <= 0 {
		config.Confidence = DefaultConfig().Confidence
	}
	return &Controller{config: config, gate: gate, check: check, executor: executor, state: Healthy}
}

// State returns the current health state.
func (c *Controller) State() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(state Health) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) setPending(id string) {
	c.mu.Lock()
	c.pending = id
	c.mu.Unlock()
}

// Run probes the target on the configured interval until ctx is cancelled.
// Cancellation mid-repair leaves the target Unhealthy, never Repairing.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.State() == Repairing {
				c.setState(Unhealthy)
			}
			return
		case <-ticker.C:
			if c.State() == Fatal {
				// Fatal requires human intervention; stop probing until the
				// controller is reset.
				continue
			}
			c.Observe(ctx)
		}
	}
}

// Observe runs one probe cycle: check health and, when the target is
// unhealthy, attempt a bounded repair.
func (c *Controller) Observe(ctx context.Context) Health {
	healthy, detail := c.check(ctx)
	if healthy {
		c.mu.Lock()
		c.state = Healthy
		c.retries = 0
		c.mu.Unlock()
		return Healthy
	}
	c.setState(Unhealthy)
	if state, handled := c.resumePending(ctx); handled {
		return state
	}
	return c.repair(ctx, detail)
}

// Reset clears a Fatal state after human intervention, re-arming the loop.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state = Healthy
	c.retries = 0
	c.pending = ""
	c.mu.Unlock()
}

// resumePending checks on a repair decision previously escalated to a
// guardian. While it awaits a verdict no new repair is submitted; once
// approved the controller executes it.
func (c *Controller) resumePending(ctx context.Context) (Health, bool) {
	c.mu.RLock()
	id := c.pending
	c.mu.RUnlock()
	if id == "" {
		return Unhealthy, false
	}
	record, err := c.gate.Get(ctx, id)
	if err != nil {
		log.Printf("healing: pending repair lookup failed for %s: %v", id, err)
		c.setPending("")
		return Unhealthy, false
	}
	switch {
	case record.Status == decision.StatusPending:
		// The guardian still owns the repair.
		return Unhealthy, true
	case record.Status.Executable():
		c.setPending("")
		c.setState(Repairing)
		if c.executeOnce(ctx, record) {
			if healthy, _ := c.check(ctx); healthy {
				c.mu.Lock()
				c.state = Healthy
				c.retries = 0
				c.mu.Unlock()
				return Healthy, true
			}
		}
		c.setState(Unhealthy)
		return Unhealthy, true
	default:
		// Rejected or expired; the automatic loop resumes.
		c.setPending("")
		return Unhealthy, false
	}
}

// repair submits approval-gated repair decisions until the target recovers,
// the decision is escalated to a human, or the retry budget runs out.
func (c *Controller) repair(ctx context.Context, detail string) Health {
	backoff := c.config.Backoff

	for attempt := 0; attempt <= c.config.RetryLimit; attempt++ {
		if ctx.Err() != nil {
			c.setState(Unhealthy)
			return Unhealthy
		}
		c.setState(Repairing)

		receipt, err := c.gate.Submit(ctx, c.newRepairDecision(detail, attempt))
		if err != nil {
			log.Printf("healing: submit failed for target %s: %v", c.config.Target, err)
			c.setState(Unhealthy)
			return Unhealthy
		}
		if receipt.Record.Status != decision.StatusAutoApproved {
			// Escalated: a guardian now owns the repair; stop the automatic
			// loop without burning retries.
			log.Printf("healing: repair for target %s escalated as decision %s", c.config.Target, receipt.Record.ID)
			c.setPending(receipt.Record.ID)
			c.setState(Unhealthy)
			return Unhealthy
		}

		if c.executeOnce(ctx, receipt.Record) {
			if healthy, _ := c.check(ctx); healthy {
				c.mu.Lock()
				c.state = Healthy
				c.retries = 0
				c.mu.Unlock()
				return Healthy
			}
		}

		c.mu.Lock()
		c.retries++
		c.mu.Unlock()
		c.setState(Unhealthy)

		if attempt < c.config.RetryLimit {
			select {
			case <-ctx.Done():
				return Unhealthy
			case <-time.After(backoff):
			}
			if c.config.Exponential {
				backoff *= 2
			}
		}
	}

	c.setState(Fatal)
	c.escalateFatal(ctx, detail)
	return Fatal
}

// executeOnce invokes the executor under the configured timeout and records
// the outcome. Returns true when the execution succeeded.
func (c *Controller) executeOnce(ctx context.Context, record *decision.Record) bool {
	execCtx, cancel := context.WithTimeout(ctx, c.config.ExecTimeout)
	defer cancel()

	err := c.executor.Execute(execCtx, record)
	success := err == nil
	detail := "repair executed"
	if err != nil {
		detail = fmt.Sprintf("repair failed: %v", err)
	}
	if _, markErr := c.gate.MarkExecuted(ctx, record.ID, success, detail); markErr != nil {
		log.Printf("healing: mark executed failed for %s: %v", record.ID, markErr)
	}
	return success
}

func (c *Controller) newRepairDecision(detail string, attempt int) *decision.Record {
	return &decision.Record{
		Type:           decision.TypeHealing,
		Priority:       decision.PriorityHigh,
		Confidence:     c.config.Confidence,
		ProposedAction: fmt.Sprintf("restart/repair target %s", c.config.Target),
		Reasoning:      fmt.Sprintf("target %s unhealthy: %s (attempt %d)", c.config.Target, detail, attempt+1),
		Source:         c.config.Target,
		Risk: &decision.RiskAssessment{
			BlastRadius:     c.config.BlastRadius,
			Reversible:      true,
			AffectedSystems: 1,
		},
	}
}

// escalateFatal emits the critical decision that hands the target to a human.
// Critical priority always routes to RequireApproval.
func (c *Controller) escalateFatal(ctx context.Context, detail string) {
	record := &decision.Record{
		Type:           decision.TypeHealing,
		Priority:       decision.PriorityCritical,
		Confidence:     0,
		ProposedAction: fmt.Sprintf("manual intervention for target %s", c.config.Target),
		Reasoning: fmt.Sprintf("automatic repair of target %s ceased after %d attempt(s): %s",
			c.config.Target, c.config.RetryLimit+1, detail),
		Source: c.config.Target,
		Risk: &decision.RiskAssessment{
			BlastRadius: c.config.BlastRadius,
			Reversible:  false,
			Factors: []decision.RiskFactor{
				{Name: "repair-loop-exhausted", Blocking: true, Detail: "automatic healing disabled for this target"},
			},
		},
	}
	if _, err := c.gate.Submit(ctx, record); err != nil {
		log.Printf("healing: fatal escalation failed for target %s: %v", c.config.Target, err)
	}
}
