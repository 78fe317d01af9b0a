package optimizer

import (
	"testing"

	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

func testSchema() scalar.Schema {
	return scalar.Schema{scalar.KindInt32, scalar.KindInt32, scalar.KindInt32}
}

// TestSimplePushdown mirrors the reference predicate_pushdown.rs
// simple_pushdown test: a single filter directly over a scan collapses
// into the scan's own predicate.
func TestSimplePushdown(t *testing.T) {
	plan := logical.Scan("test.csv", testSchema()).
		Filter(expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(0)}).
		CollectVec()

	got, err := PredicatePushdown{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	cv, ok := got.(*logical.CollectVec)
	if !ok {
		t.Fatalf("expected *CollectVec at root, got %T", got)
	}
	scan, ok := cv.Input.(*logical.TableScan)
	if !ok {
		t.Fatalf("expected filter to collapse into scan, got %T", cv.Input)
	}
	if scan.Predicate == nil {
		t.Fatalf("expected predicate to be absorbed into the scan")
	}
}

// TestConsecutiveFilters mirrors consecutive_filters/consecutive_filters_2:
// chained filters over a scan merge into one conjoined predicate on the scan.
func TestConsecutiveFilters(t *testing.T) {
	plan := logical.Scan("test.csv", testSchema()).
		Filter(expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(0)}).
		Filter(expr.Binary{Op: expr.OpLt, Left: expr.Col(1), Right: expr.I(0)}).
		CollectVec()

	got, err := PredicatePushdown{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	cv := got.(*logical.CollectVec)
	scan, ok := cv.Input.(*logical.TableScan)
	if !ok {
		t.Fatalf("expected both filters to collapse into the scan, got %T", cv.Input)
	}
	if _, ok := scan.Predicate.(expr.Binary); !ok {
		t.Fatalf("expected a conjoined predicate, got %T", scan.Predicate)
	}
}

// TestStopOnNonPassthroughSelect mirrors stop_on_selection's intent: a
// filter over a column the projection computes (rather than passing
// through unchanged) cannot push past it, since there is no single input
// column the atom could be rewritten to reference.
func TestStopOnNonPassthroughSelect(t *testing.T) {
	plan := logical.Scan("test.csv", testSchema()).
		Select(expr.Col(0), expr.Binary{Op: expr.OpAdd, Left: expr.Col(1), Right: expr.Col(2)}).
		Filter(expr.Binary{Op: expr.OpLt, Left: expr.Col(1), Right: expr.I(0)}).
		CollectVec()

	got, err := PredicatePushdown{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	cv := got.(*logical.CollectVec)
	outerFilter, ok := cv.Input.(*logical.Filter)
	if !ok {
		t.Fatalf("expected the filter to remain above the select, got %T", cv.Input)
	}
	if _, ok := outerFilter.Input.(*logical.Select); !ok {
		t.Fatalf("expected a select directly under the remaining filter, got %T", outerFilter.Input)
	}
}

// TestPushdownThroughPassthroughSelect is §4.3's mandatory seed scenario:
// filter(p1).select([c0,c1]).filter(p2 over c0) collapses into a single
// TableScan{pred: p1 && p2}, since p2 only reads c0, which the [c0,c1]
// projection passes straight through unrenamed.
func TestPushdownThroughPassthroughSelect(t *testing.T) {
	p1 := expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(0)}
	p2 := expr.Binary{Op: expr.OpLt, Left: expr.Col(0), Right: expr.I(10)}
	plan := logical.Scan("test.csv", testSchema()).
		Filter(p1).
		Select(expr.Col(0), expr.Col(1)).
		Filter(p2).
		CollectVec()

	got, err := PredicatePushdown{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	cv := got.(*logical.CollectVec)
	sel, ok := cv.Input.(*logical.Select)
	if !ok {
		t.Fatalf("expected select directly under collect, got %T", cv.Input)
	}
	scan, ok := sel.Input.(*logical.TableScan)
	if !ok {
		t.Fatalf("expected both filters to collapse into the scan, got %T", sel.Input)
	}
	if _, ok := scan.Predicate.(expr.Binary); !ok {
		t.Fatalf("expected a conjoined predicate on the scan, got %T", scan.Predicate)
	}
}

// TestPredicatePushdownThroughJoin covers §4.3's Join pushdown split: a
// left-pure atom pushes into the left child, a right-pure atom pushes
// into the right child (renumbered via ShiftLeft), and a genuinely
// cross-side atom stays above the Join as its own Filter.
func TestPredicatePushdownThroughJoin(t *testing.T) {
	left := logical.Scan("left.csv", scalar.Schema{scalar.KindInt32, scalar.KindInt32})
	right := logical.Scan("right.csv", scalar.Schema{scalar.KindInt32, scalar.KindInt32})
	join := &logical.Join{
		Left:      left,
		Right:     right,
		LeftKeys:  []expr.Expr{expr.Col(0)},
		RightKeys: []expr.Expr{expr.Col(0)},
		Kind:      logical.JoinInner,
	}
	pureLeft := expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(0)}
	pureRight := expr.Binary{Op: expr.OpLt, Left: expr.Col(3), Right: expr.I(10)} // right.col1, global col 3
	cross := expr.Binary{Op: expr.OpLt, Left: expr.Col(0), Right: expr.Col(2)}    // left.col0 vs right.col0
	pred := expr.And(expr.And(pureLeft, pureRight), cross)
	plan := &logical.CollectVec{Input: &logical.Filter{Predicate: pred, Input: join}}

	got, err := PredicatePushdown{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	cv := got.(*logical.CollectVec)
	outerFilter, ok := cv.Input.(*logical.Filter)
	if !ok {
		t.Fatalf("expected the cross-side atom to remain as a filter above the join, got %T", cv.Input)
	}
	joinNode, ok := outerFilter.Input.(*logical.Join)
	if !ok {
		t.Fatalf("expected a join directly under the remaining filter, got %T", outerFilter.Input)
	}
	leftScan, ok := joinNode.Left.(*logical.TableScan)
	if !ok || leftScan.Predicate == nil {
		t.Fatalf("expected the left-pure atom pushed into the left scan, got %#v", joinNode.Left)
	}
	rightScan, ok := joinNode.Right.(*logical.TableScan)
	if !ok || rightScan.Predicate == nil {
		t.Fatalf("expected the right-pure atom pushed into the right scan, got %#v", joinNode.Right)
	}
	rightBin, ok := rightScan.Predicate.(expr.Binary)
	if !ok {
		t.Fatalf("expected a binary predicate on the right scan, got %T", rightScan.Predicate)
	}
	col, ok := rightBin.Left.(expr.Column)
	if !ok || col.Pos != 1 {
		t.Fatalf("expected the right-pushed atom renumbered to col(1), got %v", rightBin.Left)
	}
}

func TestOptimizeSchemaPreserved(t *testing.T) {
	plan := logical.Scan("test.csv", testSchema()).
		Filter(expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(0)}).
		Select(expr.Col(0), expr.Col(1)).
		CollectVec()

	got, err := Optimize(plan, Options{})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	want := plan.Schema()
	have := got.Schema()
	if !schemaEqual(want, have) {
		t.Fatalf("schema changed by optimization: %v -> %v", want, have)
	}
}

func TestGroupBySelectFusion(t *testing.T) {
	scan := logical.Scan("test.csv", testSchema())
	plan := scan.GroupBy(expr.Col(0)).Select(
		expr.Col(0),
		expr.Aggregate{Kind: expr.AggSum, Inner: expr.Col(1)},
	)

	got, err := GroupBySelectFusion{}.Optimize(plan)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	gbs, ok := got.(*logical.GroupBySelect)
	if !ok {
		t.Fatalf("expected fused GroupBySelect, got %T", got)
	}
	if len(gbs.Keys) != 1 || len(gbs.Aggs) != 1 {
		t.Fatalf("expected 1 key and 1 agg, got %d keys %d aggs", len(gbs.Keys), len(gbs.Aggs))
	}
	agg, ok := gbs.Aggs[0].(expr.Aggregate)
	if !ok {
		t.Fatalf("expected an Aggregate in Aggs, got %T", gbs.Aggs[0])
	}
	col, ok := agg.Inner.(expr.Column)
	if !ok || col.Pos != 0 {
		t.Fatalf("expected the aggregate to reference column 0 of the ungrouped schema, got %v", agg.Inner)
	}
}
