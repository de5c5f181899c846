package audit

import (
	"time"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Actor recorded for transitions triggered by the system rather than a human.
const SystemActor = "system"

// Event captures a single status transition of a decision record. Seq is
// assigned by the log on append and orders events of the same decision.
type Event struct {
	ID         string            `json:"id"`
	DecisionID string            `json:"decisionId"`
	Seq        int               `json:"seq"`
	From       decision.Status   `json:"from,omitempty"` // empty for the creation event
	To         decision.Status   `json:"to"`
	Type       decision.Type     `json:"type,omitempty"`
	Priority   decision.Priority `json:"priority,omitempty"`
	Actor      string            `json:"actor"`
	Reasoning  string            `json:"reasoning,omitempty"`
	At         time.Time         `json:"at"`

	// Record is attached to the creation event only, so that replaying the
	// log can reconstruct the full snapshot, not just its status.
	Record *decision.Record `json:"record,omitempty"`
}

// Filter narrows QueryAll results. Zero-value fields match everything.
type Filter struct {
	Types      []decision.Type
	Priorities []decision.Priority
	Statuses   []decision.Status // matches the To status
	Since      time.Time
	Until      time.Time
}

// Matches reports whether the event passes the filter.
func (f *Filter) Matches(event *Event) bool {
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !containsType(f.Types, event.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, event.Priority) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, event.To) {
		return false
	}
	if !f.Since.IsZero() && event.At.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && event.At.After(f.Until) {
		return false
	}
	return true
}

func containsType(haystack []decision.Type, needle decision.Type) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []decision.Priority, needle decision.Priority) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}

func containsStatus(haystack []decision.Status, needle decision.Status) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}
