package policy

import (
	"fmt"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Rule configures the auto-approval gate for a single decision type.
//
//   - Threshold is the minimum confidence per priority; a priority with no
//     entry fails closed (RequireApproval).
//   - MaxAutoApprove caps the priority that may ever auto-approve; anything
//     above it is escalated regardless of confidence. Empty means no priority
//     may auto-approve for this type.
type Rule struct {
	Threshold      map[decision.Priority]float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" koanf:"threshold"`
	MaxAutoApprove decision.Priority             `json:"maxAutoApprove,omitempty" yaml:"max_auto_approve,omitempty" koanf:"max_auto_approve"`
}

// Config is the serialisable policy table. The zero value is useful – an
// empty table escalates everything (fail closed).
type Config struct {
	Rules map[decision.Type]Rule `json:"rules,omitempty" yaml:"rules,omitempty" koanf:"rules"`

	// BlockingRiskFactors lists risk factor names that veto auto-approval
	// even when the factor itself is not marked blocking.
	BlockingRiskFactors []string `json:"blockingRiskFactors,omitempty" yaml:"blocking_risk_factors,omitempty" koanf:"blocking_risk_factors"`
}

// DefaultConfig returns the stock policy table. The thresholds mirror the
// operational defaults the system shipped with: rollbacks need near-certainty,
// monitoring adjustments are cheap, overrides never auto-approve.
func DefaultConfig() *Config {
	return &Config{
		Rules: map[decision.Type]Rule{
			decision.TypeDeployment: {
				Threshold: map[decision.Priority]float64{
					decision.PriorityLow:    0.8,
					decision.PriorityMedium: 0.8,
				},
				MaxAutoApprove: decision.PriorityMedium,
			},
			decision.TypeScaling: {
				Threshold: map[decision.Priority]float64{
					decision.PriorityLow:    0.7,
					decision.PriorityMedium: 0.7,
					decision.PriorityHigh:   0.7,
				},
				MaxAutoApprove: decision.PriorityHigh,
			},
			decision.TypeRollback: {
				Threshold: map[decision.Priority]float64{
					decision.PriorityLow:    0.9,
					decision.PriorityMedium: 0.9,
					decision.PriorityHigh:   0.9,
				},
				MaxAutoApprove: decision.PriorityHigh,
			},
			decision.TypeHealing: {
				Threshold: map[decision.Priority]float64{
					decision.PriorityLow:    0.85,
					decision.PriorityMedium: 0.85,
					decision.PriorityHigh:   0.85,
				},
				MaxAutoApprove: decision.PriorityHigh,
			},
			decision.TypeMonitoring: {
				Threshold: map[decision.Priority]float64{
					decision.PriorityLow: 0.6,
				},
				MaxAutoApprove: decision.PriorityLow,
			},
			// Overrides exist precisely to force human review.
			decision.TypeOverride: {},
		},
		BlockingRiskFactors: []string{"irreversible", "production-data"},
	}
}

// Validate returns an aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	for decisionType, rule := range c.Rules {
		if !decisionType.Valid() {
			return fmt.Errorf("policy: unknown decision type %q", decisionType)
		}
		if rule.MaxAutoApprove != "" && !rule.MaxAutoApprove.Valid() {
			return fmt.Errorf("policy: unknown maxAutoApprove priority %q for %s", rule.MaxAutoApprove, decisionType)
		}
		for priority, threshold := range rule.Threshold {
			if !priority.Valid() {
				return fmt.Errorf("policy: unknown priority %q for %s", priority, decisionType)
			}
			if threshold < 0 || threshold > 1 {
				return fmt.Errorf("policy: threshold %v for %s/%s outside [0,1]", threshold, decisionType, priority)
			}
		}
	}
	return nil
}
