// Package approval implements the decision lifecycle state machine. It is the
// only component permitted to mutate a record's status: every transition is
// checked against the legal state graph, appended to the audit log and then
// reflected in the snapshot store, all under a per-decision writer lock so
// concurrent callers observe at-most-once effect per decision ID.
package approval
