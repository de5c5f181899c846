// Package tracker adapts the gatekeeper to an external issue tracker where
// escalated decisions are presented to human guardians. Publication is
// at-least-once and idempotent on decision ID; a publish failure never blocks
// the decision lifecycle – it is retried independently by the RetryWorker.
package tracker
