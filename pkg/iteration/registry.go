// Package iteration implements the feedback-loop core of §4.8: a shared
// IterationStateLock identified by an opaque integer id (the arena
// model of §9 "Cyclic references"), per-pass consensus on whether to
// restart or let Terminate propagate, and side-input caching at
// Y-connections so a stream originating outside the loop can be
// replayed on every pass.
package iteration

import "sync"

// LockID is the opaque handle a body block carries in its
// streaming.IterationContext stack; only the bracket operators that
// share a Registry ever dereference it into a *StateLock (§9: "other
// operators only read the id").
type LockID int

// StateLock is the per-iteration consensus object: the number of passes
// completed so far, shared by every block inside one iteration bracket.
type StateLock struct {
	ID   LockID
	Pass int
}

// Registry is the arena owning every live StateLock, keyed by LockID.
// Exactly one Registry is expected per running engine instance; the
// caller creates it with NewRegistry and threads it into iteration
// bracket construction, never held globally (unlike
// pkg/expr's deliberate globalExecutorManager exception — this is job
// state, not a backend-selection cache, so it does not get the same
// pass, see SPEC_FULL.md §9).
type Registry struct {
	mu    sync.Mutex
	next  LockID
	locks map[LockID]*StateLock
}

// NewRegistry builds an empty arena.
func NewRegistry() *Registry { return &Registry{locks: make(map[LockID]*StateLock)} }

// Acquire allocates a fresh lock for a new iteration bracket.
func (r *Registry) Acquire() LockID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.locks[id] = &StateLock{ID: id}
	return id
}

// Get looks up a lock by id; ok is false once the lock has been
// released (the iteration has ended).
func (r *Registry) Get(id LockID) (*StateLock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	return l, ok
}

// Release frees a lock once its iteration bracket has terminated.
func (r *Registry) Release(id LockID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
}
