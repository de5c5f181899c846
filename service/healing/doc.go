// Package healing drives bounded automatic repair of a single health target.
// Repairs are gated by the same approval policy as every other autonomous
// action: the controller submits a Healing decision and only acts when the
// policy engine auto-approves it. A persistent failure exhausts the retry
// budget and escalates as a critical decision instead of flapping forever.
package healing
