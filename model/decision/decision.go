package decision

import (
	"fmt"
	"time"

	"github.com/sentinelops/gatekeeper/internal/clock"
	"github.com/sentinelops/gatekeeper/internal/idgen"
)

// RiskFactor describes a single assessed risk of the proposed action.
type RiskFactor struct {
	Name     string `json:"name"`
	Severity string `json:"severity,omitempty"`
	Blocking bool   `json:"blocking,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// RiskAssessment captures the secondary signal consumed by the policy engine.
// Factors marked Blocking veto auto-approval regardless of confidence.
type RiskAssessment struct {
	Factors         []RiskFactor `json:"factors,omitempty"`
	BlastRadius     string       `json:"blastRadius,omitempty"`
	Reversible      bool         `json:"reversible"`
	DataRisk        bool         `json:"dataRisk,omitempty"`
	AffectedSystems int          `json:"affectedSystems,omitempty"`
}

// HasBlocking reports whether any factor is marked blocking or matches one of
// the supplied blocked factor names.
func (r *RiskAssessment) HasBlocking(blocked map[string]bool) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, factor := range r.Factors {
		if factor.Blocking {
			return factor.Name, true
		}
		if blocked[factor.Name] {
			return factor.Name, true
		}
	}
	return "", false
}

// Approval records the human response to an escalated decision.
type Approval struct {
	Approver  string    `json:"approver"`
	Reasoning string    `json:"reasoning,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Record is the unit of work: an immutable proposal for an autonomous action.
// Only Status and Approval mutate after creation, and only the approval state
// machine is permitted to mutate them.
type Record struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	Priority       Priority        `json:"priority"`
	Confidence     float64         `json:"confidence"`
	ProposedAction string          `json:"proposedAction,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty"`
	Risk           *RiskAssessment `json:"risk,omitempty"`
	Source         string          `json:"source,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Status         Status          `json:"status"`
	Approval       *Approval       `json:"approval,omitempty"`
}

// Init assigns a generated ID and creation timestamp when the caller supplied
// none. It never overwrites caller-provided values.
func (r *Record) Init() {
	if r.ID == "" {
		r.ID = idgen.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = clock.Now()
	}
}

// Validate checks the record against the construction invariants. A record
// that fails validation never enters the system.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown decision type %q", ErrInvalidRecord, r.Type)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRecord, r.Priority)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidRecord, r.Confidence)
	}
	return nil
}

// Clone returns a deep enough copy for snapshot isolation – callers holding a
// clone cannot mutate the stored record's approval or risk data.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	if r.Approval != nil {
		approval := *r.Approval
		ret.Approval = &approval
	}
	if r.Risk != nil {
		risk := *r.Risk
		risk.Factors = append([]RiskFactor(nil), r.Risk.Factors...)
		ret.Risk = &risk
	}
	if r.Metadata != nil {
		ret.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			ret.Metadata[k] = v
		}
	}
	return &ret
}
