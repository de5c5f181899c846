package decision

import "errors"

// Lifecycle errors shared across the gatekeeper services. Sentinel variables
// allow callers to detect conditions via errors.Is instead of brittle string
// comparisons.
var (
	// ErrInvalidRecord indicates a malformed record that never enters the
	// system (unknown enum value, confidence outside [0,1]).
	ErrInvalidRecord = errors.New("decision: invalid record")

	// ErrDuplicateDecision is returned when a record with the same ID was
	// already submitted. Submission is idempotent – callers receive the
	// existing record alongside this error.
	ErrDuplicateDecision = errors.New("decision: duplicate decision")

	// ErrUnknownDecision is returned when the referenced decision ID does not
	// exist.
	ErrUnknownDecision = errors.New("decision: unknown decision")

	// ErrInvalidTransition indicates the requested status change is not legal
	// from the record's current status.
	ErrInvalidTransition = errors.New("decision: invalid transition")

	// ErrStorageUnavailable indicates a transient persistence failure; the
	// caller retries the whole operation, no partial state is committed.
	ErrStorageUnavailable = errors.New("decision: storage unavailable")

	// ErrPublishUnavailable indicates the external tracker is unreachable.
	// Non-fatal to the decision lifecycle – publication is retried
	// independently.
	ErrPublishUnavailable = errors.New("decision: tracker publish unavailable")
)
