package optimizer

import (
	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
)

// predicateWrapper tracks one top-level-&& atom as it travels down the
// plan, together with the depth it was introduced at and whether a
// blocking operator currently has it locked in place. This is a direct
// port of the reference implementation's PredicateWrapper (see
// original_source/src/optimization/predicate_pushdown.rs), translated from
// Option<Expr>-with-take() to a nil-checked pointer field.
type predicateWrapper struct {
	predicate expr.Expr // nil once taken
	level     uint32
	lockedAt  *uint32
}

func newPredicateWrapper(p expr.Expr, level uint32) *predicateWrapper {
	return &predicateWrapper{predicate: p, level: level}
}

func (w *predicateWrapper) lock(i uint32)   { w.lockedAt = &i }
func (w *predicateWrapper) unlock(i uint32) {
	if w.lockedAt != nil && *w.lockedAt == i {
		w.lockedAt = nil
	}
}
func (w *predicateWrapper) isLocked() bool { return w.lockedAt != nil }
func (w *predicateWrapper) isAvailable(i uint32) bool {
	return w.predicate != nil && !w.isLocked() && w.level < i
}
func (w *predicateWrapper) take() expr.Expr {
	p := w.predicate
	w.predicate = nil
	return p
}

// separate splits an expression at every top-level && into independent
// atoms, each wrapped at the given level.
func separate(e expr.Expr, level uint32) []*predicateWrapper {
	var stack []expr.Expr
	cur := e
	for cur != nil {
		if b, ok := cur.(expr.Binary); ok && b.Op == expr.OpAnd {
			stack = append(stack, b.Right)
			cur = b.Left
			continue
		}
		stack = append(stack, cur)
		cur = nil
	}
	out := make([]*predicateWrapper, 0, len(stack))
	// stack was filled innermost-left-last; reverse to restore left-to-right
	// order the way the reference implementation's Vec push order produces.
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, newPredicateWrapper(stack[i], level))
	}
	return out
}

// takeAction conjoins every currently available atom at level i, removing
// them from the accumulator.
func takeAction(acc []*predicateWrapper, i uint32) expr.Expr {
	var result expr.Expr
	for _, w := range acc {
		if !w.isAvailable(i) {
			continue
		}
		p := w.take()
		if result == nil {
			result = p
		} else {
			result = expr.And(result, p)
		}
	}
	return result
}

// PredicatePushdown implements the fixed-point predicate pushdown rule of
// §4.3, pushing filter atoms past every operator the pushdown table allows.
type PredicatePushdown struct{}

func (PredicatePushdown) Name() string { return "predicate-pushdown" }

func (r PredicatePushdown) Optimize(plan logical.Plan) (logical.Plan, error) {
	var acc []*predicateWrapper
	return pushdown(plan, &acc, 0)
}

func pushdown(plan logical.Plan, acc *[]*predicateWrapper, i uint32) (logical.Plan, error) {
	switch p := plan.(type) {
	case *logical.TableScan:
		pushed := takeAction(*acc, i)
		newPred := conjoin(p.Predicate, pushed)
		return &logical.TableScan{Path: p.Path, Predicate: newPred, Projections: p.Projections, Sch: p.Sch}, nil

	case *logical.Filter:
		var previous []*predicateWrapper
		for _, w := range *acc {
			if w.isAvailable(i) {
				// take() zeroes the old wrapper's slot and hands the
				// predicate to a fresh wrapper re-leveled at i, mirroring
				// the reference's PredicateWrapper::take.
				previous = append(previous, &predicateWrapper{predicate: w.take(), level: i})
			}
		}
		pieces := separate(p.Predicate, i)
		start := len(*acc)
		*acc = append(*acc, pieces...)
		*acc = append(*acc, previous...)
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		window := (*acc)[start:]
		var newPredicate expr.Expr
		for _, w := range window {
			if w.isAvailable(i) {
				part := w.take()
				if newPredicate == nil {
					newPredicate = part
				} else {
					newPredicate = expr.And(newPredicate, part)
				}
			}
		}
		if newPredicate == nil {
			return newInput, nil
		}
		return &logical.Filter{Predicate: newPredicate, Input: newInput}, nil

	case *logical.Select:
		// §4.3's Select pushdown rule: push an atom past the projection
		// only if its column_set is a subset of columns the projection
		// passes through unrenamed and unaggregated — anything else stays
		// locked above the Select, exactly like before.
		passthrough := passthroughColumns(p.Columns)
		var blocked []*predicateWrapper
		for _, w := range *acc {
			if !w.isAvailable(i) {
				continue
			}
			remapped, ok := remapColumns(w.predicate, passthrough)
			if !ok {
				blocked = append(blocked, w)
				continue
			}
			w.take()
			*acc = append(*acc, &predicateWrapper{predicate: remapped, level: i})
		}
		for _, w := range blocked {
			w.lock(i)
		}
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		for _, w := range blocked {
			w.unlock(i)
		}
		pushed := takeAction(*acc, i)
		selectNode := &logical.Select{Columns: p.Columns, Input: newInput}
		if pushed == nil {
			return selectNode, nil
		}
		return &logical.Filter{Predicate: pushed, Input: selectNode}, nil

	case *logical.DropColumns:
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		return &logical.DropColumns{Input: newInput, Columns: p.Columns}, nil

	case *logical.CollectVec:
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		return &logical.CollectVec{Input: newInput}, nil

	case *logical.Shuffle:
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		return &logical.Shuffle{Input: newInput}, nil

	case *logical.GroupBy:
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		return &logical.GroupBy{Keys: p.Keys, Input: newInput}, nil

	case *logical.DropKey:
		newInput, err := pushdown(p.Input, acc, i+1)
		if err != nil {
			return nil, err
		}
		return &logical.DropKey{Input: newInput}, nil

	case *logical.Join:
		// §4.3's Join pushdown rule: split each available atom by side —
		// an atom referencing only left-schema columns travels with the
		// left recursion untouched; one referencing only right-schema
		// columns is re-leveled and ShiftLeft'd before the right
		// recursion; a genuinely cross-side atom can be pushed to
		// neither and stays locked until it is reattached as a Filter
		// above the Join.
		leftWidth := len(p.Left.Schema())
		var rightAtoms, crossAtoms []*predicateWrapper
		for _, w := range *acc {
			if !w.isAvailable(i) {
				continue
			}
			pureLeft, pureRight := true, true
			for c := range w.predicate.ColumnSet() {
				if c >= leftWidth {
					pureLeft = false
				} else {
					pureRight = false
				}
			}
			switch {
			case pureRight:
				rightAtoms = append(rightAtoms, w)
			case !pureLeft:
				crossAtoms = append(crossAtoms, w)
			}
			// pureLeft atoms need no special handling: left unlocked, they
			// are already numbered correctly for the left recursion and
			// the usual isAvailable/take machinery picks them up there.
		}
		for _, w := range crossAtoms {
			w.lock(i)
		}
		for _, w := range rightAtoms {
			w.lock(i) // keep away from the left recursion
		}
		newLeft, err := pushdown(p.Left, acc, i+1)
		if err != nil {
			return nil, err
		}
		for _, w := range rightAtoms {
			w.unlock(i)
			if !w.isAvailable(i) {
				continue
			}
			*acc = append(*acc, &predicateWrapper{predicate: w.take().ShiftLeft(leftWidth), level: i})
		}
		newRight, err := pushdown(p.Right, acc, i+1)
		if err != nil {
			return nil, err
		}
		for _, w := range crossAtoms {
			w.unlock(i)
		}
		joinNode := &logical.Join{Left: newLeft, Right: newRight, LeftKeys: p.LeftKeys, RightKeys: p.RightKeys, Kind: p.Kind}
		pushed := takeAction(*acc, i)
		if pushed == nil {
			return joinNode, nil
		}
		return &logical.Filter{Predicate: pushed, Input: joinNode}, nil

	case *logical.UpStream:
		return p, nil

	default:
		return plan, nil
	}
}

// passthroughColumns returns, for each Select output position whose
// expression is a bare column reference (no rename, no computation, no
// aggregation), the input position it reads unchanged. Only these output
// positions are safe for a predicate atom to reference and still be
// pushed below the projection that introduced them.
func passthroughColumns(cols []expr.Expr) map[int]int {
	out := map[int]int{}
	for outPos, c := range cols {
		if col, ok := c.(expr.Column); ok {
			out[outPos] = col.Pos
		}
	}
	return out
}

// remapColumns rewrites every Column reference in e through mapping,
// reporting ok=false the instant it finds a column mapping does not
// cover — i.e. the atom depends on a renamed, computed, or aggregated
// projection column and cannot be pushed below it.
func remapColumns(e expr.Expr, mapping map[int]int) (expr.Expr, bool) {
	switch n := e.(type) {
	case expr.Column:
		to, ok := mapping[n.Pos]
		if !ok {
			return nil, false
		}
		return expr.Col(to), true
	case expr.Literal:
		return n, true
	case expr.Binary:
		l, ok := remapColumns(n.Left, mapping)
		if !ok {
			return nil, false
		}
		r, ok := remapColumns(n.Right, mapping)
		if !ok {
			return nil, false
		}
		return expr.Binary{Op: n.Op, Left: l, Right: r}, true
	case expr.Unary:
		in, ok := remapColumns(n.Inner, mapping)
		if !ok {
			return nil, false
		}
		return expr.Unary{Op: n.Op, Inner: in}, true
	default:
		// Aggregate/Empty/Compiled never appear in a predicate atom at
		// this stage of the pipeline (fusion and JIT lowering both run
		// after pushdown), so anything else is conservatively unpushable.
		return nil, false
	}
}

func conjoin(a, b expr.Expr) expr.Expr {
	switch {
	case a != nil && b != nil:
		return expr.And(a, b)
	case a != nil:
		return a
	default:
		return b
	}
}
