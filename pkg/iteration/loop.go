package iteration

import "github.com/rosscartlidge/dataflow/pkg/streaming"

// ContinuePredicate decides, once a pass of the loop body has produced
// its FlushAndRestart, whether the iteration runs another pass or lets
// Terminate propagate out of the loop (§4.8: "a global consensus
// decides whether to reset accumulators and start another pass, or to
// let the Terminate propagate"; §4.9's Restart transition).
type ContinuePredicate func(pass int) bool

// BodyFactory builds the stream for one pass of the loop body. feedback
// is the previous pass's body stream (nil on pass 0); how a concrete
// body uses it — re-deriving a materialized accumulator, re-wiring a
// SideInputCache, or ignoring it entirely for a fixed-point-free loop —
// is the caller's concern, not the bracket's.
type BodyFactory func(pass int, feedback streaming.Stream) streaming.Stream

// Loop implements the iteration bracket pair of §4.8 as a single
// combinator: body blocks never see the bracket directly, only the
// LockID in their IterationContext stack (carried by whatever block
// graph wires Loop's returned Stream into place).
//
// Each pass runs body to its own FlushAndRestart; the predicate is then
// consulted once per pass. A true answer starts another pass with the
// completed pass's stream as feedback; a false answer promotes that
// FlushAndRestart to the loop's own Terminate, matching the spec's rule
// that FlushAndRestart never crosses an iteration boundary on its own —
// only a fully-propagated Terminate does.
func Loop(registry *Registry, body BodyFactory, shouldContinue ContinuePredicate) streaming.Stream {
	lockID := registry.Acquire()
	pass := 0
	var current streaming.Stream
	var feedback streaming.Stream
	started := false
	terminated := false

	return func() (streaming.Element, error) {
		if terminated {
			panic("iteration: Loop.Next called after Terminate")
		}
		for {
			if !started {
				current = body(pass, feedback)
				started = true
			}
			e, err := current()
			if err != nil {
				return streaming.Element{}, err
			}
			switch e.Kind {
			case streaming.KindFlushAndRestart:
				if lock, ok := registry.Get(lockID); ok {
					lock.Pass++
				}
				if shouldContinue(pass) {
					feedback = current
					pass++
					started = false
					continue
				}
				terminated = true
				registry.Release(lockID)
				return streaming.Terminate(), nil
			case streaming.KindTerminate:
				terminated = true
				registry.Release(lockID)
				return e, nil
			default:
				return e, nil
			}
		}
	}
}
