package streaming

// NextStrategyKind enumerates the routing rule at a block boundary (§4.4).
type NextStrategyKind uint8

const (
	OnlyOne NextStrategyKind = iota
	Random
	GroupByStrategy
	All
)

// NextStrategy is the tagged routing rule attached to an End operator.
// Hasher is used only when Kind == GroupByStrategy.
type NextStrategy struct {
	Kind   NextStrategyKind
	Hasher func(any) uint64
}

// Targets computes the set of downstream replica indices (0..numDownstream)
// that should receive a payload element, given the strategy and a
// caller-supplied source of randomness for Random routing.
func (s NextStrategy) Targets(payload any, numDownstream int, nextRandom func(int) int) []int {
	if numDownstream == 0 {
		return nil
	}
	switch s.Kind {
	case OnlyOne:
		// Identity routing: caller is expected to have numUpstream ==
		// numDownstream and to route replica i to replica i; Targets is
		// not used for OnlyOne (the caller short-circuits), but for
		// completeness it broadcasts to replica 0.
		return []int{0}
	case Random:
		return []int{nextRandom(numDownstream)}
	case GroupByStrategy:
		h := s.Hasher(payload)
		return []int{int(h % uint64(numDownstream))}
	case All:
		out := make([]int, numDownstream)
		for i := range out {
			out[i] = i
		}
		return out
	default:
		return nil
	}
}

// ControlTargets returns every downstream index: control elements
// (Watermark/Flush/Terminate) always broadcast to every downstream edge regardless of strategy (§4.4
// "End operator": "for control elements it broadcasts on its outgoing
// edges").
func ControlTargets(numDownstream int) []int {
	out := make([]int, numDownstream)
	for i := range out {
		out[i] = i
	}
	return out
}
