// Package policy decides whether a decision record may execute automatically
// or must be escalated for human approval. The engine is a pure function over
// its configuration and the record – it keeps no state and has no side
// effects, so the same record always yields the same outcome.
package policy
