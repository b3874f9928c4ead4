// Package task implements the durable generation task queue and the
// workers that drain it.
//
// Tasks are persisted rows, not in-memory work items: enqueueing is
// idempotent per target, workers claim tasks through time-bounded
// leases, and a worker crash simply lets the lease expire so another
// worker picks the task up. Each task kind drives one generation stage
// (course outline, lesson block skeleton, block content) and writes its
// result back onto the course document through transition-guarded
// status updates, which makes duplicate processing converge instead of
// corrupting state.
package task
