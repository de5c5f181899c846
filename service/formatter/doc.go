// Package formatter renders decision records into the representations
// consumed outside the system: a markdown document for human guardians, a
// structured JSON payload for machines and a stable file path for archival.
// Formatting is total – it never fails for a valid record; absent optional
// fields render as explicit "not provided" so reviewers see completeness at a
// glance.
package formatter
