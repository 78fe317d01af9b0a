package optimizer

import (
	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
)

// GroupBySelectFusion implements the group-by/select fusion rule of §4.3:
// a Select sitting directly over a GroupBy, mixing the key columns (columns
// 0..len(Keys)-1 of a GroupBy's output schema) with aggregator expressions,
// collapses into a single GroupBySelect node — the keyed associative fold
// the physical bridge lowers into accumulate/combine.
type GroupBySelectFusion struct{}

func (GroupBySelectFusion) Name() string { return "groupby-select-fusion" }

func (r GroupBySelectFusion) Optimize(plan logical.Plan) (logical.Plan, error) {
	return fuse(plan), nil
}

func fuse(plan logical.Plan) logical.Plan {
	switch p := plan.(type) {
	case *logical.Select:
		newInput := fuse(p.Input)
		gb, ok := newInput.(*logical.GroupBy)
		if !ok {
			return &logical.Select{Columns: p.Columns, Input: newInput}
		}
		numKeys := len(gb.Keys)
		aggs := make([]expr.Expr, 0, len(p.Columns))
		for _, col := range p.Columns {
			if c, ok := col.(expr.Column); ok && c.Pos < numKeys {
				// a group key column: already represented by gb.Keys in
				// GroupBySelect.Keys, so it is dropped from Aggs.
				continue
			}
			// grouped schema is [keys..., ...original]; shift back down by
			// numKeys to address the ungrouped Input's column numbering.
			aggs = append(aggs, col.ShiftLeft(numKeys))
		}
		return &logical.GroupBySelect{Input: gb.Input, Keys: gb.Keys, Aggs: aggs}

	case *logical.Filter:
		return &logical.Filter{Predicate: p.Predicate, Input: fuse(p.Input)}
	case *logical.Shuffle:
		return &logical.Shuffle{Input: fuse(p.Input)}
	case *logical.DropKey:
		return &logical.DropKey{Input: fuse(p.Input)}
	case *logical.DropColumns:
		return &logical.DropColumns{Input: fuse(p.Input), Columns: p.Columns}
	case *logical.CollectVec:
		return &logical.CollectVec{Input: fuse(p.Input)}
	case *logical.GroupBy:
		return &logical.GroupBy{Keys: p.Keys, Input: fuse(p.Input)}
	case *logical.Join:
		return &logical.Join{Left: fuse(p.Left), Right: fuse(p.Right), LeftKeys: p.LeftKeys, RightKeys: p.RightKeys, Kind: p.Kind}
	default:
		return plan
	}
}
