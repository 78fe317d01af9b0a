// Package logical implements the relational plan tree: the node types of
// §3/§3.1, schema propagation, and the small fluent builder used by the
// optimizer's own tests (mirroring the reference dsl's .filter()/.select()
// chaining sugar).
package logical

import (
	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

// JoinKind enumerates the three join flavors the plan supports.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinOuter JoinKind = "outer"
)

// Plan is the logical plan node interface. Every node can recompute its
// own output schema from its inputs' schemas.
type Plan interface {
	Schema() scalar.Schema
	Children() []Plan
}

// TableScan is a leaf reading rows from a named source, with an optional
// pushed-down predicate and projection list and an optional pinned schema
// (late-bound schemas are probed once by the physical bridge, §4.5).
type TableScan struct {
	Path        string
	Predicate   expr.Expr // nil if none
	Projections []int     // nil if none (full width)
	Sch         scalar.Schema
}

func (t *TableScan) Schema() scalar.Schema {
	if t.Projections == nil {
		return t.Sch
	}
	out := make(scalar.Schema, len(t.Projections))
	for i, c := range t.Projections {
		out[i] = t.Sch[c]
	}
	return out
}
func (t *TableScan) Children() []Plan { return nil }

// Filter keeps rows for which Predicate evaluates truthy.
type Filter struct {
	Predicate expr.Expr
	Input     Plan
}

func (f *Filter) Schema() scalar.Schema { return f.Input.Schema() }
func (f *Filter) Children() []Plan      { return []Plan{f.Input} }

// Select projects (and/or computes) a list of expressions over the input row.
type Select struct {
	Columns []expr.Expr
	Input   Plan
}

func (s *Select) Schema() scalar.Schema {
	in := s.Input.Schema()
	out := make(scalar.Schema, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.ResultKind(in)
	}
	return out
}
func (s *Select) Children() []Plan { return []Plan{s.Input} }

// Shuffle forces a repartition without changing the row shape (next
// strategy Random, driven by the physical bridge).
type Shuffle struct{ Input Plan }

func (s *Shuffle) Schema() scalar.Schema { return s.Input.Schema() }
func (s *Shuffle) Children() []Plan      { return []Plan{s.Input} }

// GroupBy re-keys the stream on Keys, without yet folding (pairs with a
// later Select to fuse into GroupBySelect, §4.3). Keys is plural to allow
// a genuine multi-column grouping key, mirroring GroupBySelect.Keys.
type GroupBy struct {
	Keys  []expr.Expr
	Input Plan
}

func (g *GroupBy) Schema() scalar.Schema {
	in := g.Input.Schema()
	keyKinds := make(scalar.Schema, len(g.Keys))
	for i, k := range g.Keys {
		keyKinds[i] = k.ResultKind(in)
	}
	return append(keyKinds, in...)
}
func (g *GroupBy) Children() []Plan { return []Plan{g.Input} }

// DropKey removes the key prefix introduced by a GroupBy.
type DropKey struct{ Input Plan }

func (d *DropKey) Schema() scalar.Schema {
	s := d.Input.Schema()
	if len(s) == 0 {
		return s
	}
	return s[1:]
}
func (d *DropKey) Children() []Plan { return []Plan{d.Input} }

// DropColumns removes the given value-relative column positions.
type DropColumns struct {
	Input   Plan
	Columns []int
}

func (d *DropColumns) Schema() scalar.Schema {
	in := d.Input.Schema()
	drop := map[int]struct{}{}
	for _, c := range d.Columns {
		drop[c] = struct{}{}
	}
	out := make(scalar.Schema, 0, len(in))
	for i, k := range in {
		if _, dropped := drop[i]; !dropped {
			out = append(out, k)
		}
	}
	return out
}
func (d *DropColumns) Children() []Plan { return []Plan{d.Input} }

// Join combines two plans on key expressions; absent rows on a missing
// side are padded per §4.3.
type Join struct {
	Left, Right         Plan
	LeftKeys, RightKeys []expr.Expr
	Kind                JoinKind
}

func (j *Join) Schema() scalar.Schema {
	return scalar.MergeSchema(j.Left.Schema(), j.Right.Schema())
}
func (j *Join) Children() []Plan { return []Plan{j.Left, j.Right} }

// GroupBySelect is the fused node produced by group-by/select fusion
// (§4.3): a single keyed associative fold.
type GroupBySelect struct {
	Input Plan
	Keys  []expr.Expr
	Aggs  []expr.Expr // each is an expr.Aggregate, or a plain key-passthrough column
}

func (g *GroupBySelect) Schema() scalar.Schema {
	in := g.Input.Schema()
	out := make(scalar.Schema, len(g.Keys)+len(g.Aggs))
	i := 0
	for _, k := range g.Keys {
		out[i] = k.ResultKind(in)
		i++
	}
	for _, a := range g.Aggs {
		out[i] = a.ResultKind(in)
		i++
	}
	return out
}
func (g *GroupBySelect) Children() []Plan { return []Plan{g.Input} }

// CollectVec is a sink node materializing all rows into an in-memory
// result; physical lowering turns it into a SinkHandle.
type CollectVec struct{ Input Plan }

func (c *CollectVec) Schema() scalar.Schema { return c.Input.Schema() }
func (c *CollectVec) Children() []Plan      { return []Plan{c.Input} }

// UpStream wraps an already-constructed streaming source (bypassing the
// logical layer entirely) with an explicit schema, used to splice
// hand-built streams into an optimized plan.
type UpStream struct {
	StreamID string // opaque handle resolved by the physical bridge's context
	Sch      scalar.Schema
}

func (u *UpStream) Schema() scalar.Schema { return u.Sch }
func (u *UpStream) Children() []Plan      { return nil }

// --- fluent builder sugar, mirroring the reference dsl's .filter()/.select() chaining ---

func Scan(path string, schema scalar.Schema) *TableScan { return &TableScan{Path: path, Sch: schema} }

func (t *TableScan) Filter(pred expr.Expr) *Filter  { return &Filter{Predicate: pred, Input: t} }
func (f *Filter) Filter(pred expr.Expr) *Filter     { return &Filter{Predicate: pred, Input: f} }
func (g *GroupBy) Filter(pred expr.Expr) *Filter     { return &Filter{Predicate: pred, Input: g} }

func (f *Filter) Select(cols ...expr.Expr) *Select    { return &Select{Columns: cols, Input: f} }
func (t *TableScan) Select(cols ...expr.Expr) *Select { return &Select{Columns: cols, Input: t} }
func (g *GroupBy) Select(cols ...expr.Expr) *Select   { return &Select{Columns: cols, Input: g} }
func (s *Select) Filter(pred expr.Expr) *Filter       { return &Filter{Predicate: pred, Input: s} }

func (t *TableScan) GroupBy(keys ...expr.Expr) *GroupBy { return &GroupBy{Keys: keys, Input: t} }
func (f *Filter) GroupBy(keys ...expr.Expr) *GroupBy    { return &GroupBy{Keys: keys, Input: f} }

func (t *TableScan) CollectVec() *CollectVec { return &CollectVec{Input: t} }
func (f *Filter) CollectVec() *CollectVec    { return &CollectVec{Input: f} }
func (s *Select) CollectVec() *CollectVec    { return &CollectVec{Input: s} }
func (g *GroupBy) CollectVec() *CollectVec   { return &CollectVec{Input: g} }
func (d *DropKey) CollectVec() *CollectVec   { return &CollectVec{Input: d} }
