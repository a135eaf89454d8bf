// Package pipeline coordinates artifact state with the job queue. The
// coordinator is the only writer of artifact status after ingestion:
// transform requests gate on eligibility and enqueue atomically, and
// job outcomes settle the job row and the artifact row in a single
// transaction so the two tables never disagree.
package pipeline
