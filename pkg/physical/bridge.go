// Package physical implements the logical-to-physical bridge of §4.5: it
// lowers a pkg/logical.Plan into an executable pkg/streaming.Stream (or,
// for a CollectVec root, a SinkHandle that drains one into a result
// slice). Every node turns into plain Go composition over the pull
// iterator, following the teacher's own "a pipeline is a function that
// wraps another function" style (pkg/stream/filters.go).
package physical

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

// TableSource produces the raw (unfiltered, unprojected) row stream for a
// named TableScan path. The physical bridge always re-applies predicate
// and projection itself, so a source is free to ignore the pushdown
// hints and still be correct — matching §4.5's "a connector MAY use the
// pushed predicate/projection for efficiency, but correctness never
// depends on it."
type TableSource func(path string) streaming.Stream

// Context supplies everything the bridge needs that isn't carried by the
// plan tree itself: table connectors and already-built upstream handles
// spliced in via logical.UpStream.
type Context struct {
	Tables    map[string]TableSource
	Upstreams map[string]streaming.Stream
}

// ToStream lowers any non-sink plan node into a Stream of Item(scalar.Row)
// elements (plus the usual control elements forwarded untouched). §4.5's
// typing rule: TableScan, Filter, Select (non-aggregating), Shuffle,
// DropKey, DropColumns, Join, GroupBy, GroupBySelect, UpStream all lower
// to a Stream — the keyed-vs-plain distinction lives in whether the
// rows carry a Key prefix, not in the Go type.
func ToStream(plan logical.Plan, ctx *Context) (streaming.Stream, error) {
	switch p := plan.(type) {
	case *logical.TableScan:
		return lowerTableScan(p, ctx)
	case *logical.Filter:
		return lowerFilter(p, ctx)
	case *logical.Select:
		return lowerSelect(p, ctx)
	case *logical.Shuffle:
		// Local lowering is a no-op: physical repartitioning across
		// replicas is the scheduler's concern (§4.6), not the bridge's —
		// a Shuffle only forces the End operator above it to use Random
		// next-strategy instead of OnlyOne.
		return ToStream(p.Input, ctx)
	case *logical.GroupBy:
		return lowerGroupBy(p, ctx)
	case *logical.DropKey:
		return lowerDropKey(p, ctx)
	case *logical.DropColumns:
		return lowerDropColumns(p, ctx)
	case *logical.Join:
		return lowerJoin(p, ctx)
	case *logical.GroupBySelect:
		return lowerGroupBySelect(p, ctx)
	case *logical.UpStream:
		s, ok := ctx.Upstreams[p.StreamID]
		if !ok {
			return nil, fmt.Errorf("physical: no upstream registered for %q", p.StreamID)
		}
		return s, nil
	case *logical.CollectVec:
		return nil, fmt.Errorf("physical: CollectVec is a sink; call ToSink instead")
	default:
		return nil, fmt.Errorf("physical: unhandled plan node %T", plan)
	}
}

// SinkHandle drains its underlying stream exactly once, per §4.5's
// "CollectVec → SinkHandle" typing rule.
type SinkHandle struct {
	stream streaming.Stream
}

// Rows drains the sink to its first Terminate, returning every payload
// row collected along the way (one slice per FlushAndRestart epoch would
// require the caller to re-invoke Rows after each restart; a single
// drain call here returns all rows up to Terminate, mirroring the
// teacher's Collect[T] in pkg/stream/aggregators.go).
func (s *SinkHandle) Rows() ([]scalar.Row, error) {
	var out []scalar.Row
	for {
		e, err := s.stream()
		if err != nil {
			return out, err
		}
		if e.IsPayload() {
			out = append(out, e.Payload.(scalar.Row))
		}
		if e.Kind == streaming.KindTerminate {
			return out, nil
		}
	}
}

// ToSink lowers a CollectVec root into a SinkHandle.
func ToSink(plan *logical.CollectVec, ctx *Context) (*SinkHandle, error) {
	s, err := ToStream(plan.Input, ctx)
	if err != nil {
		return nil, err
	}
	return &SinkHandle{stream: s}, nil
}

func lowerTableScan(p *logical.TableScan, ctx *Context) (streaming.Stream, error) {
	src, ok := ctx.Tables[p.Path]
	if !ok {
		return nil, fmt.Errorf("physical: no table source registered for %q", p.Path)
	}
	s := src(p.Path)
	if p.Predicate != nil {
		s = streaming.FilterPayload(func(payload any) bool {
			return truthy(expr.Eval(p.Predicate, payload.(scalar.Row)))
		})(s)
	}
	if p.Projections != nil {
		cols := p.Projections
		s = streaming.MapPayload(func(payload any) any {
			return payload.(scalar.Row).Select(cols)
		})(s)
	}
	return s, nil
}

func lowerFilter(p *logical.Filter, ctx *Context) (streaming.Stream, error) {
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	return streaming.FilterPayload(func(payload any) bool {
		return truthy(expr.Eval(p.Predicate, payload.(scalar.Row)))
	})(in), nil
}

// truthy reports whether a predicate's result scalar should keep the
// row: only an explicit Bool(true) does; NaN/Missing/non-bool results
// drop the row rather than propagating, since a Filter has nowhere to
// forward a propagated value (§2: total arithmetic still has to resolve
// to a yes/no decision at a Filter boundary).
func truthy(s scalar.Scalar) bool {
	b, ok := s.AsBool()
	return ok && b
}

// lowerSelect handles a non-aggregating projection. A bare Select whose
// columns contain an Aggregate node is a contract violation: the
// group-by/select fusion optimizer rule (pkg/optimizer) is responsible
// for turning that shape into a GroupBySelect before the plan ever
// reaches the bridge (§4.3).
func lowerSelect(p *logical.Select, ctx *Context) (streaming.Stream, error) {
	for _, c := range p.Columns {
		if expr.IsAggregate(c) {
			return nil, fmt.Errorf("physical: Select contains an unfused Aggregate column %s; expected group-by/select fusion to have run", c)
		}
	}
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	cols := p.Columns
	return streaming.MapPayload(func(payload any) any {
		row := payload.(scalar.Row)
		out := make([]scalar.Scalar, len(cols))
		for i, c := range cols {
			out[i] = expr.Eval(c, row)
		}
		return scalar.Row{Key: row.Key, Value: out}
	})(in), nil
}

// lowerGroupBy re-keys each row by the group key expressions, without
// folding — pairs with a later Select the fusion rule did not catch
// (e.g. GroupBy.CollectVec() directly), or with a downstream DropKey.
func lowerGroupBy(p *logical.GroupBy, ctx *Context) (streaming.Stream, error) {
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	keys := p.Keys
	return streaming.MapPayload(func(payload any) any {
		row := payload.(scalar.Row)
		ks := make([]scalar.Scalar, len(keys))
		for i, key := range keys {
			ks[i] = expr.Eval(key, row)
		}
		return scalar.Row{Key: append(ks, row.Key...), Value: row.Value}
	})(in), nil
}

func lowerDropKey(p *logical.DropKey, ctx *Context) (streaming.Stream, error) {
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	return streaming.MapPayload(func(payload any) any {
		return payload.(scalar.Row).DropKey()
	})(in), nil
}

func lowerDropColumns(p *logical.DropColumns, ctx *Context) (streaming.Stream, error) {
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	drop := map[int]struct{}{}
	for _, c := range p.Columns {
		drop[c] = struct{}{}
	}
	return streaming.MapPayload(func(payload any) any {
		row := payload.(scalar.Row)
		keep := make([]int, 0, len(row.Value))
		for i := range row.Value {
			if _, dropped := drop[i]; !dropped {
				keep = append(keep, i)
			}
		}
		return row.Select(keep)
	})(in), nil
}

// scalarKey renders a scalar tuple into a Go map key. Scalar.String is
// already total (never panics, §2), so this is safe for every kind
// including NaN/Missing — it is a grouping key, not a comparison: every
// NaN renders as "NaN" (and every Missing as "Missing"), so all NaN keys
// fall into one group even though NaN != NaN as values.
func scalarKey(vals []scalar.Scalar) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// groupAccumulator folds one GroupBySelect aggregate column across the
// rows of a single key, following the teacher's
// Aggregator[T,A,R]{Initial,Accumulate,Finalize} shape
// (pkg/stream/aggregators.go) generalized from a fixed Go type T to the
// dynamic scalar.Scalar produced by evaluating an expr.Expr per row.
type groupAccumulator struct {
	kind    expr.AggKind
	inner   expr.Expr
	sum     scalar.Scalar
	count   int64
	extreme scalar.Scalar
	first   scalar.Scalar
	started bool
}

func newGroupAccumulator(a expr.Aggregate) *groupAccumulator {
	return &groupAccumulator{kind: a.Kind, inner: a.Inner, sum: scalar.Int32(0)}
}

func (g *groupAccumulator) accumulate(row scalar.Row) {
	v := expr.Eval(g.inner, row)
	g.count++
	if !g.started {
		g.first = v
		g.extreme = v
		g.started = true
	}
	switch g.kind {
	case expr.AggSum, expr.AggAvg:
		g.sum = g.sum.Add(v)
	case expr.AggMin:
		if v.Less(g.extreme) {
			g.extreme = v
		}
	case expr.AggMax:
		if g.extreme.Less(v) {
			g.extreme = v
		}
	}
}

func (g *groupAccumulator) finalize() scalar.Scalar {
	switch g.kind {
	case expr.AggCount:
		return scalar.Int32(int32(g.count))
	case expr.AggSum:
		return g.sum
	case expr.AggAvg:
		return g.sum.Div(scalar.Int32(int32(g.count)))
	case expr.AggMin, expr.AggMax:
		return g.extreme
	case expr.AggVal:
		return g.first
	default:
		return scalar.NaN()
	}
}

// groupState is the live fold state for one key during one epoch
// (§8 "a FlushAndRestart boundary ends one accumulation epoch").
type groupState struct {
	key   []scalar.Scalar
	accs  []*groupAccumulator
}

// lowerGroupBySelect implements the keyed associative fold: rows are
// accumulated per distinct key tuple until a FlushAndRestart, at which
// point every group's finalized row is emitted (in ascending order of
// the rendered key string, for determinism) before the boundary itself
// is forwarded, and
// the fold state resets for the next epoch.
func lowerGroupBySelect(p *logical.GroupBySelect, ctx *Context) (streaming.Stream, error) {
	in, err := ToStream(p.Input, ctx)
	if err != nil {
		return nil, err
	}
	keys := p.Keys
	aggs := p.Aggs

	groups := map[string]*groupState{}
	var order []string
	pending := []streaming.Element{}
	resetState := func() {
		groups = map[string]*groupState{}
		order = nil
	}

	return func() (streaming.Element, error) {
		for {
			if len(pending) > 0 {
				e := pending[0]
				pending = pending[1:]
				return e, nil
			}
			e, err := in()
			if err != nil {
				return streaming.Element{}, err
			}
			if e.IsPayload() {
				row := e.Payload.(scalar.Row)
				kv := make([]scalar.Scalar, len(keys))
				for i, k := range keys {
					kv[i] = expr.Eval(k, row)
				}
				gk := scalarKey(kv)
				gs, ok := groups[gk]
				if !ok {
					gs = &groupState{key: kv, accs: make([]*groupAccumulator, len(aggs))}
					for i, a := range aggs {
						if agg, isAgg := a.(expr.Aggregate); isAgg {
							gs.accs[i] = newGroupAccumulator(agg)
						} else {
							// plain key-passthrough column: functional
							// dependency on the group key is assumed
							// (§4.3); captured once from the first row.
							gs.accs[i] = newGroupAccumulator(expr.Aggregate{Kind: expr.AggVal, Inner: a})
						}
					}
					groups[gk] = gs
					order = append(order, gk)
				}
				for _, acc := range gs.accs {
					acc.accumulate(row)
				}
				continue
			}
			if e.Kind == streaming.KindFlushAndRestart || e.Kind == streaming.KindTerminate {
				sort.Strings(order) // deterministic emission order across runs
				for _, gk := range order {
					gs := groups[gk]
					out := make([]scalar.Scalar, len(keys)+len(aggs))
					copy(out, gs.key)
					for i, acc := range gs.accs {
						out[len(keys)+i] = acc.finalize()
					}
					pending = append(pending, streaming.Item(scalar.Row{Value: out}))
				}
				pending = append(pending, e)
				resetState()
				continue
			}
			// other control elements (Watermark, FlushBatch) pass through
			// untouched between accumulation.
			return e, nil
		}
	}, nil
}

// joinBucket holds every buffered right-side row sharing one join key,
// alongside a parallel matched flag per row — JoinOuter needs this to
// know, once the left side has drained, which right rows no probe ever
// touched and must therefore be emitted left-padded.
type joinBucket struct {
	rows    []scalar.Row
	matched []bool
}

// lowerJoin implements a hash join: the right side is buffered entirely
// into a map keyed by its join-key tuple (standard build side for an
// unbounded-memory reference implementation, §4.3's Non-goals exclude
// spill-to-disk join execution), then the left side is streamed and
// probed. Absent matches on a missing side are padded per §4.3 for
// Left/Outer; for JoinOuter, unmatched right rows are themselves
// emitted left-padded once the left side drains ("both sides padded").
func lowerJoin(p *logical.Join, ctx *Context) (streaming.Stream, error) {
	rightStream, err := ToStream(p.Right, ctx)
	if err != nil {
		return nil, err
	}
	leftWidth := len(p.Left.Schema())
	rightWidth := len(p.Right.Schema())
	build := map[string]*joinBucket{}
	var order []string
	for {
		e, err := rightStream()
		if err != nil {
			return nil, err
		}
		if e.IsPayload() {
			row := e.Payload.(scalar.Row)
			kv := make([]scalar.Scalar, len(p.RightKeys))
			for i, k := range p.RightKeys {
				kv[i] = expr.Eval(k, row)
			}
			gk := scalarKey(kv)
			b, ok := build[gk]
			if !ok {
				b = &joinBucket{}
				build[gk] = b
				order = append(order, gk)
			}
			b.rows = append(b.rows, row)
			b.matched = append(b.matched, false)
		}
		if e.Kind == streaming.KindTerminate {
			break
		}
	}

	leftStream, err := ToStream(p.Left, ctx)
	if err != nil {
		return nil, err
	}
	leftKeys := p.LeftKeys
	pending := []streaming.Element{}
	unmatchedEmitted := false
	emitUnmatchedRight := func() {
		for _, gk := range order {
			b := build[gk]
			for i, r := range b.rows {
				if b.matched[i] {
					continue
				}
				padded := scalar.Row{Value: scalar.PadMissing(leftWidth)}
				pending = append(pending, streaming.Item(padded.Concat(r)))
			}
		}
	}
	return func() (streaming.Element, error) {
		for {
			if len(pending) > 0 {
				e := pending[0]
				pending = pending[1:]
				return e, nil
			}
			e, err := leftStream()
			if err != nil {
				return streaming.Element{}, err
			}
			if !e.IsPayload() {
				drained := e.Kind == streaming.KindFlushAndRestart || e.Kind == streaming.KindTerminate
				if p.Kind == logical.JoinOuter && !unmatchedEmitted && drained {
					unmatchedEmitted = true
					emitUnmatchedRight()
					pending = append(pending, e)
					continue
				}
				return e, nil
			}
			leftRow := e.Payload.(scalar.Row)
			kv := make([]scalar.Scalar, len(leftKeys))
			for i, k := range leftKeys {
				kv[i] = expr.Eval(k, leftRow)
			}
			b, ok := build[scalarKey(kv)]
			switch {
			case ok && len(b.rows) > 0:
				for i, r := range b.rows {
					b.matched[i] = true
					pending = append(pending, streaming.Item(leftRow.Concat(r)))
				}
			case p.Kind == logical.JoinLeft || p.Kind == logical.JoinOuter:
				pending = append(pending, streaming.Item(leftRow.Concat(scalar.Row{Value: scalar.PadMissing(rightWidth)})))
			}
			// Inner join with no match: drop the row and poll again.
		}
	}, nil
}
