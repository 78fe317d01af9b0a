package optimizer

import (
	"sort"

	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
)

// ProjectionPushdown computes, for every node, the set of columns still
// needed by everything above it, and narrows TableScan's projection list
// to the minimal set actually read. Binary joins split the needed set at
// leftWidth and renumber the right-hand positions into the right input's
// own numbering (position minus leftWidth); the left input keeps its full
// width so the right-hand columns of the joined row do not move. When a
// scan's used-column set is not contiguous from zero, the scan is left
// wide rather than risking an incorrect narrow projection (the same
// conservative fallback the reference optimizer takes).
type ProjectionPushdown struct{}

func (ProjectionPushdown) Name() string { return "projection-pushdown" }

func (r ProjectionPushdown) Optimize(plan logical.Plan) (logical.Plan, error) {
	width := len(plan.Schema())
	all := make(map[int]struct{}, width)
	for i := 0; i < width; i++ {
		all[i] = struct{}{}
	}
	return project(plan, all), nil
}

func project(plan logical.Plan, needed map[int]struct{}) logical.Plan {
	switch p := plan.(type) {
	case *logical.TableScan:
		cols := sortedKeys(needed)
		if isContiguousFromZero(cols, len(p.Sch)) {
			return p // already minimal or scan is fully consumed
		}
		if len(cols) > len(p.Sch) || !isContiguousFromZero(cols, len(cols)) {
			return p // a gap would renumber the columns read above the scan
		}
		return &logical.TableScan{Path: p.Path, Predicate: p.Predicate, Projections: cols, Sch: p.Sch}

	case *logical.Filter:
		below := union(needed, p.Predicate.ColumnSet())
		return &logical.Filter{Predicate: p.Predicate, Input: project(p.Input, below)}

	case *logical.Select:
		below := map[int]struct{}{}
		for _, c := range p.Columns {
			below = union(below, c.ColumnSet())
		}
		return &logical.Select{Columns: p.Columns, Input: project(p.Input, below)}

	case *logical.Shuffle:
		return &logical.Shuffle{Input: project(p.Input, needed)}

	case *logical.GroupBy:
		below := needed
		for _, k := range p.Keys {
			below = union(below, k.ColumnSet())
		}
		return &logical.GroupBy{Keys: p.Keys, Input: project(p.Input, below)}

	case *logical.DropKey:
		return &logical.DropKey{Input: project(p.Input, needed)}

	case *logical.DropColumns:
		return &logical.DropColumns{Input: project(p.Input, needed), Columns: p.Columns}

	case *logical.GroupBySelect:
		below := map[int]struct{}{}
		for _, k := range p.Keys {
			below = union(below, k.ColumnSet())
		}
		for _, a := range p.Aggs {
			below = union(below, a.ColumnSet())
		}
		return &logical.GroupBySelect{Input: project(p.Input, below), Keys: p.Keys, Aggs: p.Aggs}

	case *logical.CollectVec:
		return &logical.CollectVec{Input: project(p.Input, needed)}

	case *logical.Join:
		leftWidth := len(p.Left.Schema())
		leftNeeded := map[int]struct{}{}
		rightNeeded := map[int]struct{}{}
		for c := range needed {
			if c < leftWidth {
				leftNeeded[c] = struct{}{}
			} else {
				rightNeeded[c-leftWidth] = struct{}{}
			}
		}
		for _, k := range p.LeftKeys {
			leftNeeded = union(leftNeeded, k.ColumnSet())
		}
		for c := 0; c < leftWidth; c++ {
			leftNeeded[c] = struct{}{} // a narrower left side would shift the right-hand columns
		}
		for _, k := range p.RightKeys {
			rightNeeded = union(rightNeeded, k.ColumnSet())
		}
		newRightKeys := make([]expr.Expr, len(p.RightKeys))
		copy(newRightKeys, p.RightKeys)
		return &logical.Join{
			Left:      project(p.Left, leftNeeded),
			Right:     project(p.Right, rightNeeded),
			LeftKeys:  p.LeftKeys,
			RightKeys: newRightKeys,
			Kind:      p.Kind,
		}

	default:
		return plan
	}
}

func union(a, b map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// isContiguousFromZero reports whether cols is exactly {0,...,n-1} with
// n == fullWidth. Called with the scan's full width it means nothing was
// actually narrowed, so leaving Projections nil (full width) is
// equivalent and cheaper to carry; called with len(cols) it means cols is
// a prefix, which narrows the scan without renumbering any column.
func isContiguousFromZero(cols []int, fullWidth int) bool {
	if len(cols) != fullWidth {
		return false
	}
	for i, c := range cols {
		if c != i {
			return false
		}
	}
	return true
}
