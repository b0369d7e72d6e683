// Package priority holds the in-memory queue of item ids that jump ahead of
// the catalog cursor, with de-duplication against completed items and a
// preempt flag consumed by the acquisition worker at sub-item boundaries.
package priority
