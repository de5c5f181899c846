package gatekeeper

import (
	"context"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// TypeMetrics is the per-decision-type breakdown.
type TypeMetrics struct {
	Count             int     `json:"count"`
	AutoApprovalRate  float64 `json:"autoApprovalRate"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// Metrics summarises decision throughput. Escalated counts records that
// required a guardian (currently Pending or already decided by a human).
type Metrics struct {
	TotalDecisions    int                           `json:"totalDecisions"`
	AutoApproved      int                           `json:"autoApproved"`
	Escalated         int                           `json:"escalated"`
	AutoApprovalRate  float64                       `json:"autoApprovalRate"`
	EscalationRate    float64                       `json:"escalationRate"`
	AverageConfidence float64                       `json:"averageConfidence"`
	ByType            map[decision.Type]TypeMetrics `json:"byType,omitempty"`
}

// Metrics computes summary statistics over all known decisions.
func (s *Service) Metrics(ctx context.Context) (*Metrics, error) {
	records, err := s.approvals.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Metrics{ByType: make(map[decision.Type]TypeMetrics)}
	if len(records) == 0 {
		return ret, nil
	}

	type bucket struct {
		count      int
		auto       int
		confidence float64
	}
	buckets := make(map[decision.Type]*bucket)

	var confidenceSum float64
	for _, record := range records {
		ret.TotalDecisions++
		confidenceSum += record.Confidence

		b, ok := buckets[record.Type]
		if !ok {
			b = &bucket{}
			buckets[record.Type] = b
		}
		b.count++
		b.confidence += record.Confidence

		if autoApproved(record) {
			ret.AutoApproved++
			b.auto++
		} else {
			ret.Escalated++
		}
	}

	total := float64(ret.TotalDecisions)
	ret.AutoApprovalRate = float64(ret.AutoApproved) / total
	ret.EscalationRate = float64(ret.Escalated) / total
	ret.AverageConfidence = confidenceSum / total
	for decisionType, b := range buckets {
		ret.ByType[decisionType] = TypeMetrics{
			Count:             b.count,
			AutoApprovalRate:  float64(b.auto) / float64(b.count),
			AverageConfidence: b.confidence / float64(b.count),
		}
	}
	return ret, nil
}

// autoApproved reports whether the record bypassed human review. A record
// decided by a guardian carries an approval sub-record; auto-approved ones do
// not, even after execution.
func autoApproved(record *decision.Record) bool {
	switch record.Status {
	case decision.StatusAutoApproved:
		return true
	case decision.StatusExecuted, decision.StatusFailed:
		return record.Approval == nil
	}
	return false
}
