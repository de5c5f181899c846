// Package audit provides the append-only history of decision lifecycle
// transitions. The log is the sole source of truth for historical
// reconstruction: the live decision snapshot is a derived cache that can be
// rebuilt by replaying the log. Past entries are never mutated.
package audit
