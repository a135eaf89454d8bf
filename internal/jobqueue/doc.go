// Package jobqueue is a durable, at-least-once transform job queue over
// the shared pipeline database. Dequeued jobs are leased: they stay
// invisible to other consumers until acked or the lease expires, at
// which point the claim query hands them out again.
package jobqueue
