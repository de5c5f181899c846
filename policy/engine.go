package policy

import (
	"context"
	"fmt"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Outcome is the result of a policy evaluation.
type Outcome string

const (
	// AutoApprove permits autonomous execution without human review.
	AutoApprove Outcome = "autoApprove"

	// RequireApproval escalates the decision to a human guardian.
	RequireApproval Outcome = "requireApproval"
)

// Verdict couples an outcome with the human-readable reason the engine
// arrived at it. The reason ends up in the audit trail.
type Verdict struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// Engine evaluates decision records against a configured threshold table.
type Engine struct {
	config   *Config
	blocking map[string]bool
}

// New creates an engine. A nil config behaves as an empty table: every record
// is escalated.
func New(config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	blocking := make(map[string]bool, len(config.BlockingRiskFactors))
	for _, name := range config.BlockingRiskFactors {
		blocking[name] = true
	}
	return &Engine{config: config, blocking: blocking}
}

// Evaluate classifies the record as auto-executable or requiring approval.
// It is pure: no state is read beyond the configuration, none is written.
func (e *Engine) Evaluate(record *decision.Record) (*Verdict, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	// Overrides and critical-priority actions always route to a human.
	if record.Type == decision.TypeOverride {
		return &Verdict{RequireApproval, "override decisions always require guardian review"}, nil
	}
	if record.Priority == decision.PriorityCritical {
		return &Verdict{RequireApproval, "critical priority always requires guardian review"}, nil
	}

	if name, blocked := record.Risk.HasBlocking(e.blocking); blocked {
		return &Verdict{RequireApproval, fmt.Sprintf("blocking risk factor %q", name)}, nil
	}

	rule, ok := e.config.Rules[record.Type]
	if !ok {
		return &Verdict{RequireApproval, fmt.Sprintf("no policy rule configured for type %s", record.Type)}, nil
	}
	if rule.MaxAutoApprove == "" || record.Priority.Rank() > rule.MaxAutoApprove.Rank() {
		return &Verdict{RequireApproval, fmt.Sprintf("priority %s exceeds auto-approve cap for type %s", record.Priority, record.Type)}, nil
	}

	threshold, ok := rule.Threshold[record.Priority]
	if !ok {
		// Fail closed: an unconfigured (type, priority) pair is escalated.
		return &Verdict{RequireApproval, fmt.Sprintf("no confidence threshold configured for %s/%s", record.Type, record.Priority)}, nil
	}
	if record.Confidence < threshold {
		return &Verdict{RequireApproval, fmt.Sprintf("confidence %.2f below threshold %.2f", record.Confidence, threshold)}, nil
	}
	return &Verdict{AutoApprove, fmt.Sprintf("confidence %.2f meets threshold %.2f with no blocking risk", record.Confidence, threshold)}, nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithEngine embeds the engine in ctx so that deeply nested callers can reuse
// the ambient policy without plumbing it explicitly.
func WithEngine(ctx context.Context, e *Engine) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, e)
}

// FromContext extracts the ambient engine, or nil when none is embedded.
func FromContext(ctx context.Context) *Engine {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Engine); ok {
		return v
	}
	return nil
}
