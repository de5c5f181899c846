package decision

// Type classifies the autonomous action a record proposes. The set is closed –
// values are validated at construction so that downstream components never see
// an unknown type.
type Type string

const (
	TypeDeployment Type = "deployment"
	TypeScaling    Type = "scaling"
	TypeRollback   Type = "rollback"
	TypeHealing    Type = "healing"
	TypeMonitoring Type = "monitoring"
	TypeOverride   Type = "override"
)

// Types lists all known decision types.
var Types = []Type{TypeDeployment, TypeScaling, TypeRollback, TypeHealing, TypeMonitoring, TypeOverride}

// Valid reports whether t is a known decision type.
func (t Type) Valid() bool {
	switch t {
	case TypeDeployment, TypeScaling, TypeRollback, TypeHealing, TypeMonitoring, TypeOverride:
		return true
	}
	return false
}

// Priority represents decision urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists all known priorities ordered from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the ordinal position of the priority (low=0 … critical=3),
// or -1 for an unknown value. Used to compare against auto-approve caps.
func (p Priority) Rank() int {
	for i, candidate := range Priorities {
		if p == candidate {
			return i
		}
	}
	return -1
}

// Status represents the lifecycle state of a decision record.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoApproved Status = "autoApproved"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusExpired      Status = "expired"
	StatusExecuted     Status = "executed"
	StatusFailed       Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAutoApproved, StatusApproved, StatusRejected, StatusExpired, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Executable reports whether a record in this status may be handed to an
// executor (i.e. MarkExecuted is a legal next transition).
func (s Status) Executable() bool {
	return s == StatusAutoApproved || s == StatusApproved
}
