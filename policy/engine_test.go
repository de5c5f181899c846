package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinelops/gatekeeper/model/decision"
)

func TestEngine_Evaluate(t *testing.T) {
	engine := New(DefaultConfig())

	tests := []struct {
		name     string
		record   *decision.Record
		expected Outcome
	}{
		{
			name:     "deployment medium above threshold auto-approves",
			record:   &decision.Record{Type: decision.TypeDeployment, Priority: decision.PriorityMedium, Confidence: 0.95},
			expected: AutoApprove,
		},
		{
			name:     "deployment medium at threshold auto-approves",
			record:   &decision.Record{Type: decision.TypeDeployment, Priority: decision.PriorityMedium, Confidence: 0.8},
			expected: AutoApprove,
		},
		{
			name:     "deployment medium below threshold escalates",
			record:   &decision.Record{Type: decision.TypeDeployment, Priority: decision.PriorityMedium, Confidence: 0.79},
			expected: RequireApproval,
		},
		{
			name:     "deployment high exceeds auto-approve cap",
			record:   &decision.Record{Type: decision.TypeDeployment, Priority: decision.PriorityHigh, Confidence: 0.99},
			expected: RequireApproval,
		},
		{
			name:     "rollback critical escalates regardless of confidence",
			record:   &decision.Record{Type: decision.TypeRollback, Priority: decision.PriorityCritical, Confidence: 0.99},
			expected: RequireApproval,
		},
		{
			name:     "override always escalates",
			record:   &decision.Record{Type: decision.TypeOverride, Priority: decision.PriorityLow, Confidence: 1.0},
			expected: RequireApproval,
		},
		{
			name: "blocking risk factor vetoes auto-approval",
			record: &decision.Record{
				Type: decision.TypeScaling, Priority: decision.PriorityLow, Confidence: 0.99,
				Risk: &decision.RiskAssessment{Factors: []decision.RiskFactor{{Name: "data-loss", Blocking: true}}},
			},
			expected: RequireApproval,
		},
		{
			name: "configured blocking factor name vetoes without the flag",
			record: &decision.Record{
				Type: decision.TypeScaling, Priority: decision.PriorityLow, Confidence: 0.99,
				Risk: &decision.RiskAssessment{Factors: []decision.RiskFactor{{Name: "irreversible"}}},
			},
			expected: RequireApproval,
		},
		{
			name:     "monitoring medium has no threshold and fails closed",
			record:   &decision.Record{Type: decision.TypeMonitoring, Priority: decision.PriorityMedium, Confidence: 0.99},
			expected: RequireApproval,
		},
		{
			name:     "monitoring low auto-approves at its cheap threshold",
			record:   &decision.Record{Type: decision.TypeMonitoring, Priority: decision.PriorityLow, Confidence: 0.6},
			expected: AutoApprove,
		},
		{
			name:     "healing high auto-approves",
			record:   &decision.Record{Type: decision.TypeHealing, Priority: decision.PriorityHigh, Confidence: 0.9},
			expected: AutoApprove,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict, err := engine.Evaluate(tc.record)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, verdict.Outcome, verdict.Reason)
			assert.NotEmpty(t, verdict.Reason)
		})
	}
}

func TestEngine_Evaluate_CustomThreshold(t *testing.T) {
	engine := New(&Config{
		Rules: map[decision.Type]Rule{
			decision.TypeDeployment: {
				Threshold:      map[decision.Priority]float64{decision.PriorityMedium: 0.9},
				MaxAutoApprove: decision.PriorityMedium,
			},
		},
	})

	verdict, err := engine.Evaluate(&decision.Record{
		Type: decision.TypeDeployment, Priority: decision.PriorityMedium, Confidence: 0.95,
	})
	assert.NoError(t, err)
	assert.Equal(t, AutoApprove, verdict.Outcome)

	verdict, err = engine.Evaluate(&decision.Record{
		Type: decision.TypeDeployment, Priority: decision.PriorityMedium, Confidence: 0.89,
	})
	assert.NoError(t, err)
	assert.Equal(t, RequireApproval, verdict.Outcome)
}

func TestEngine_Evaluate_FailClosed(t *testing.T) {
	// An empty table escalates everything.
	engine := New(nil)
	verdict, err := engine.Evaluate(&decision.Record{
		Type: decision.TypeDeployment, Priority: decision.PriorityLow, Confidence: 1.0,
	})
	assert.NoError(t, err)
	assert.Equal(t, RequireApproval, verdict.Outcome)
}

func TestEngine_Evaluate_InvalidRecord(t *testing.T) {
	engine := New(DefaultConfig())
	_, err := engine.Evaluate(&decision.Record{Type: "bogus", Priority: decision.PriorityLow, Confidence: 0.5})
	assert.True(t, errors.Is(err, decision.ErrInvalidRecord))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := &Config{Rules: map[decision.Type]Rule{"bogus": {}}}
	assert.Error(t, bad.Validate())

	bad = &Config{Rules: map[decision.Type]Rule{
		decision.TypeScaling: {Threshold: map[decision.Priority]float64{decision.PriorityLow: 1.5}},
	}}
	assert.Error(t, bad.Validate())

	bad = &Config{Rules: map[decision.Type]Rule{
		decision.TypeScaling: {MaxAutoApprove: "urgent"},
	}}
	assert.Error(t, bad.Validate())
}

func TestContextHelpers(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	engine := New(DefaultConfig())
	ctx := WithEngine(context.Background(), engine)
	assert.Same(t, engine, FromContext(ctx))
}
