package gatekeeper

import (
	"fmt"
	"time"

	"github.com/sentinelops/gatekeeper/policy"
)

// Config is a serialisable representation of the gatekeeper configuration.
// It can be populated from JSON, YAML, environment variables, etc. The
// zero-value is useful – all nested fields inherit their package defaults.
type Config struct {
	// Policy is the threshold table consumed by the policy engine.
	Policy *policy.Config `json:"policy,omitempty" yaml:"policy,omitempty"`

	// ApprovalTTL bounds how long a Pending decision waits for a guardian
	// before it may expire. Zero disables TTL enforcement.
	ApprovalTTL time.Duration `json:"approvalTTL,omitempty" yaml:"approvalTTL,omitempty"`

	// SweepInterval is how often Start sweeps Pending decisions past their
	// TTL. Zero disables the sweeper.
	SweepInterval time.Duration `json:"sweepInterval,omitempty" yaml:"sweepInterval,omitempty"`
}

// DefaultConfig returns a Config populated with the stock policy table, a
// 24h approval TTL and a minutely expiry sweep.
func DefaultConfig() *Config {
	return &Config{
		Policy:        policy.DefaultConfig(),
		ApprovalTTL:   24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

// Validate returns an aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.ApprovalTTL < 0 {
		return fmt.Errorf("approvalTTL must be >= 0")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweepInterval must be >= 0")
	}
	return c.Policy.Validate()
}
