package streaming

import "math"

// inputState tracks the per-input bookkeeping a Start operator needs to
// implement the N-way watermark/flush barrier (§4.4).
type inputState struct {
	source          Stream
	live            bool
	watermark       int64 // latest watermark seen on this input
	sawWatermark    bool
	restartPending  bool // this input has sent FlushAndRestart, awaiting the barrier
}

// StartOperator implements the multi-input fair receive and the
// watermark/flush N-way barrier combiner of §4.4. It is the head of every
// block with more than zero inbound edges.
type StartOperator struct {
	inputs           []*inputState
	rr               int   // round-robin cursor for fairness
	lastWatermark    int64 // last watermark value actually forwarded
	haveWatermark    bool
	terminated       bool
}

// NewStartOperator builds a Start operator over the given input streams.
func NewStartOperator(sources []Stream) *StartOperator {
	inputs := make([]*inputState, len(sources))
	for i, s := range sources {
		inputs[i] = &inputState{source: s, live: true}
	}
	return &StartOperator{inputs: inputs}
}

func (s *StartOperator) Setup(*ExecutionMetadata) {}
func (s *StartOperator) Structure() BlockStructure { return BlockStructure{Name: "Start", Parallel: len(s.inputs)} }

func (s *StartOperator) liveCount() int {
	n := 0
	for _, in := range s.inputs {
		if in.live {
			n++
		}
	}
	return n
}

// Next implements the fair-receive + barrier-combine loop. It polls inputs
// round-robin; payload elements are returned immediately; control elements
// are absorbed into the per-input barrier state and only surface once the
// combining rule for that signal is satisfied across every live input.
func (s *StartOperator) Next() (Element, error) {
	if s.terminated {
		panic("streaming: Start.Next called after Terminate")
	}
	if len(s.inputs) == 0 || s.liveCount() == 0 {
		s.terminated = true
		return Terminate(), nil
	}

	for {
		idx := s.nextLiveIndex()
		if idx < 0 {
			// no live inputs left without having produced a barrier element
			// above — every input disconnected without an explicit
			// Terminate; treat as end-of-stream.
			s.terminated = true
			return Terminate(), nil
		}
		in := s.inputs[idx]
		elem, err := in.source()
		if err != nil {
			// Channel disconnected: end-of-input for this edge only (§4.7).
			in.live = false
			if out, ok := s.maybeBarrier(); ok {
				return out, nil
			}
			continue
		}

		switch elem.Kind {
		case KindItem, KindTimestamped:
			return elem, nil

		case KindFlushBatch:
			// Advisory: forward opportunistically, no barrier.
			return elem, nil

		case KindWatermark:
			in.watermark = elem.Timestamp
			in.sawWatermark = true
			if out, ok := s.maybeWatermark(); ok {
				return out, nil
			}

		case KindFlushAndRestart:
			in.restartPending = true
			if out, ok := s.maybeRestart(); ok {
				return out, nil
			}

		case KindTerminate:
			in.live = false
			if out, ok := s.maybeBarrier(); ok {
				return out, nil
			}
		}
		// No output ready yet; keep polling.
	}
}

func (s *StartOperator) nextLiveIndex() int {
	n := len(s.inputs)
	for i := 0; i < n; i++ {
		idx := (s.rr + i) % n
		if s.inputs[idx].live {
			s.rr = (idx + 1) % n
			return idx
		}
	}
	return -1
}

// maybeWatermark promotes the minimum watermark across the live inputs
// once every live input has reported one, forwarding only if it strictly
// advances.
func (s *StartOperator) maybeWatermark() (Element, bool) {
	var min int64 = math.MaxInt64
	sawAny := false
	for _, in := range s.inputs {
		if !in.live {
			continue
		}
		if !in.sawWatermark {
			return Element{}, false // not every live input has reported yet
		}
		sawAny = true
		if in.watermark < min {
			min = in.watermark
		}
	}
	if !sawAny {
		return Element{}, false
	}
	if s.haveWatermark && min <= s.lastWatermark {
		return Element{}, false
	}
	s.haveWatermark = true
	s.lastWatermark = min
	return Watermark(min), true
}

// maybeRestart fires FlushAndRestart once every live input has reported one,
// then clears the per-input marks for the next pass (§3: "propagated
// exactly once per input received").
func (s *StartOperator) maybeRestart() (Element, bool) {
	for _, in := range s.inputs {
		if in.live && !in.restartPending {
			return Element{}, false
		}
	}
	for _, in := range s.inputs {
		in.restartPending = false
	}
	return FlushAndRestart(), true
}

// maybeBarrier fires Terminate once every input has gone non-live (either
// via an explicit Terminate element or a channel disconnection), per the
// N-way barrier rule extended to the terminal signal.
func (s *StartOperator) maybeBarrier() (Element, bool) {
	if s.liveCount() > 0 {
		return Element{}, false
	}
	s.terminated = true
	return Terminate(), true
}

// EndOperator serializes payload elements to their chosen downstream
// replica(s) via Send, broadcasts control elements to every downstream
// edge, and injects FlushBatch marks per its BatchMode (§4.4 "End
// operator"): after every payload for BatchSingle and after every Size
// payloads for BatchFixedSize. BatchTimeBounded injects no FlushBatch
// marks; BoundNanos is not read.
type EndOperator struct {
	upstream      Stream
	strategy      NextStrategy
	numDownstream int
	send          func(replica int, e Element) error
	batch         BatchMode
	count         int
	nextRandom    func(int) int
}

// NewEndOperator builds an End operator. send is invoked once per
// (replica, element) pair the strategy selects; nextRandom supplies the
// replica index for Random routing (injected so tests are deterministic).
func NewEndOperator(upstream Stream, strategy NextStrategy, numDownstream int, send func(int, Element) error, batch BatchMode, nextRandom func(int) int) *EndOperator {
	if nextRandom == nil {
		nextRandom = func(n int) int { return 0 }
	}
	return &EndOperator{upstream: upstream, strategy: strategy, numDownstream: numDownstream, send: send, batch: batch, nextRandom: nextRandom}
}

func (e *EndOperator) Setup(*ExecutionMetadata) {}
func (e *EndOperator) Structure() BlockStructure { return BlockStructure{Name: "End", Parallel: e.numDownstream} }

// Next pulls one element from upstream, routes it, and returns it to the
// caller (the End operator is the tail of a block; its Next is driven by
// the runtime driver, which hands each returned element to the replica's
// Sink and stops at Terminate, see pkg/runtime).
func (e *EndOperator) Next() (Element, error) {
	elem, err := e.upstream()
	if err != nil {
		return Element{}, err
	}
	if e.numDownstream == 0 {
		return elem, nil
	}

	if elem.IsControl() {
		for _, r := range ControlTargets(e.numDownstream) {
			if sendErr := e.send(r, elem); sendErr != nil {
				return Element{}, sendErr
			}
		}
		return elem, nil
	}

	var targets []int
	if e.strategy.Kind == OnlyOne {
		targets = []int{0} // caller pins upstream replica == downstream replica out of band
	} else {
		targets = e.strategy.Targets(elem.Payload, e.numDownstream, e.nextRandom)
	}
	for _, r := range targets {
		if sendErr := e.send(r, elem); sendErr != nil {
			return Element{}, sendErr
		}
	}

	e.count++
	if e.batch.Kind == BatchFixedSize && e.count >= e.batch.Size {
		e.count = 0
		fb := FlushBatch()
		for _, r := range ControlTargets(e.numDownstream) {
			if sendErr := e.send(r, fb); sendErr != nil {
				return Element{}, sendErr
			}
		}
	} else if e.batch.Kind == BatchSingle {
		fb := FlushBatch()
		for _, r := range ControlTargets(e.numDownstream) {
			if sendErr := e.send(r, fb); sendErr != nil {
				return Element{}, sendErr
			}
		}
	}

	return elem, nil
}
