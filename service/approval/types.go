package approval

import (
	"errors"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/policy"
	"github.com/sentinelops/gatekeeper/service/audit"
)

// Event envelope published on the service queue after every transition.
type Event struct {
	Topic   string            `json:"topic"`
	Record  *decision.Record  `json:"record"`
	Audit   *audit.Event      `json:"audit,omitempty"`
	Headers map[string]string `json:"headers,omitempty"` // optional – tenant, correlation-id etc.
}

// Standard event topics.
const (
	TopicSubmitted = "decision.submitted"
	TopicDecided   = "decision.decided"
	TopicExpired   = "decision.expired"
	TopicExecuted  = "decision.executed"
)

// Receipt is the result of a submission.
type Receipt struct {
	Record  *decision.Record `json:"record"`
	Verdict *policy.Verdict  `json:"verdict,omitempty"`

	// Existing is true when the decision ID had already been submitted; the
	// receipt then carries the existing record's current state.
	Existing bool `json:"existing,omitempty"`
}

// ErrTTLNotElapsed is returned by Expire when the record's time-to-live has
// not yet passed.
var ErrTTLNotElapsed = errors.New("approval: ttl not elapsed")
