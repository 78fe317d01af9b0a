package iteration

import "github.com/rosscartlidge/dataflow/pkg/streaming"

// SideInputCache replays a stream that originates outside an iteration
// across every pass of the loop body (§4.8: "Side inputs ... are cached
// at the Y-connection so they can be replayed each iteration"; §3
// "Binary Y-connection ... the outside side is implicitly cached for
// replay on each iteration").
//
// Pass 0 pulls from the real source and records every payload element
// it sees. Every later pass replays the recording and ends in
// FlushAndRestart rather than re-pulling the (already exhausted, or
// simply not-meant-to-be-pulled-again) source stream.
type SideInputCache struct {
	source   streaming.Stream
	recorded []streaming.Element
}

// NewSideInputCache wraps source for replay across passes.
func NewSideInputCache(source streaming.Stream) *SideInputCache {
	return &SideInputCache{source: source}
}

// Stream returns the stream the loop body should read from for the
// given pass index.
func (c *SideInputCache) Stream(pass int) streaming.Stream {
	if pass == 0 {
		return c.recordingStream()
	}
	return c.replayStream()
}

func (c *SideInputCache) recordingStream() streaming.Stream {
	return func() (streaming.Element, error) {
		e, err := c.source()
		if err != nil {
			return streaming.Element{}, err
		}
		if e.IsPayload() {
			c.recorded = append(c.recorded, e)
		}
		return e, nil
	}
}

func (c *SideInputCache) replayStream() streaming.Stream {
	i := 0
	done := false
	return func() (streaming.Element, error) {
		if i < len(c.recorded) {
			e := c.recorded[i]
			i++
			return e, nil
		}
		if !done {
			done = true
			return streaming.FlushAndRestart(), nil
		}
		panic("iteration: side input replay pulled again after its FlushAndRestart")
	}
}
