package physical

import (
	"testing"

	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
	"github.com/rosscartlidge/dataflow/pkg/optimizer"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

func rowsSource(rows []scalar.Row) TableSource {
	return func(string) streaming.Stream {
		i := 0
		restarted := false
		return func() (streaming.Element, error) {
			if i < len(rows) {
				r := rows[i]
				i++
				return streaming.Item(r), nil
			}
			if !restarted {
				restarted = true
				return streaming.FlushAndRestart(), nil
			}
			return streaming.Terminate(), nil
		}
	}
}

// TestJITLoweredFilterRuns exercises the exact path that used to panic:
// optimizer.Optimize with EnableJITLowering installs an expr.Compiled node
// directly into Filter.Predicate; ToStream then calls expr.Eval on it,
// which must route the already-Compiled node straight to its closure
// instead of trying to use it as a map key.
func TestJITLoweredFilterRuns(t *testing.T) {
	rows := []scalar.Row{
		scalar.NewRow(scalar.Int32(1)),
		scalar.NewRow(scalar.Int32(2)),
		scalar.NewRow(scalar.Int32(3)),
	}
	ctx := &Context{Tables: map[string]TableSource{"t": rowsSource(rows)}}
	plan := logical.Scan("t", scalar.Schema{scalar.KindInt32}).
		Filter(expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(1)}).
		CollectVec()

	optimized, err := optimizer.Optimize(plan, optimizer.Options{EnableJITLowering: true})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	collectVec, ok := optimized.(*logical.CollectVec)
	if !ok {
		t.Fatalf("expected *logical.CollectVec, got %T", optimized)
	}

	sink, err := ToSink(collectVec, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(out), out)
	}
}

func TestFilterLowering(t *testing.T) {
	rows := []scalar.Row{
		scalar.NewRow(scalar.Int32(1)),
		scalar.NewRow(scalar.Int32(2)),
		scalar.NewRow(scalar.Int32(3)),
	}
	ctx := &Context{Tables: map[string]TableSource{"t": rowsSource(rows)}}
	plan := logical.Scan("t", scalar.Schema{scalar.KindInt32}).
		Filter(expr.Binary{Op: expr.OpGt, Left: expr.Col(0), Right: expr.I(1)}).
		CollectVec()

	sink, err := ToSink(plan, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(out), out)
	}
}

func TestGroupBySelectSum(t *testing.T) {
	rows := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(10)),
		scalar.NewRow(scalar.Int32(1), scalar.Int32(20)),
		scalar.NewRow(scalar.Int32(2), scalar.Int32(5)),
	}
	ctx := &Context{Tables: map[string]TableSource{"t": rowsSource(rows)}}
	groupBySelect := &logical.GroupBySelect{
		Input: logical.Scan("t", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		Keys:  []expr.Expr{expr.Col(0)},
		Aggs:  []expr.Expr{expr.Aggregate{Kind: expr.AggSum, Inner: expr.Col(1)}},
	}
	plan := &logical.CollectVec{Input: groupBySelect}

	sink, err := ToSink(plan, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(out), out)
	}
	sums := map[int32]int32{}
	for _, r := range out {
		k, _ := r.Value[0].AsInt32()
		v, _ := r.Value[1].AsInt32()
		sums[k] = v
	}
	if sums[1] != 30 || sums[2] != 5 {
		t.Fatalf("unexpected sums: %v", sums)
	}
}

func TestInnerJoin(t *testing.T) {
	left := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(100)),
		scalar.NewRow(scalar.Int32(2), scalar.Int32(200)),
	}
	right := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(9)),
	}
	ctx := &Context{Tables: map[string]TableSource{
		"left":  rowsSource(left),
		"right": rowsSource(right),
	}}
	join := &logical.Join{
		Left:      logical.Scan("left", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		Right:     logical.Scan("right", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		LeftKeys:  []expr.Expr{expr.Col(0)},
		RightKeys: []expr.Expr{expr.Col(0)},
		Kind:      logical.JoinInner,
	}
	plan := &logical.CollectVec{Input: join}

	sink, err := ToSink(plan, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 matched row, got %d: %v", len(out), out)
	}
	if len(out[0].Value) != 4 {
		t.Fatalf("expected 4-wide joined row, got %v", out[0])
	}
}

func TestLeftJoinPadsUnmatchedLeftRows(t *testing.T) {
	left := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(100)),
		scalar.NewRow(scalar.Int32(2), scalar.Int32(200)), // no right-side match
	}
	right := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(9)),
	}
	ctx := &Context{Tables: map[string]TableSource{
		"left":  rowsSource(left),
		"right": rowsSource(right),
	}}
	join := &logical.Join{
		Left:      logical.Scan("left", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		Right:     logical.Scan("right", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		LeftKeys:  []expr.Expr{expr.Col(0)},
		RightKeys: []expr.Expr{expr.Col(0)},
		Kind:      logical.JoinLeft,
	}
	plan := &logical.CollectVec{Input: join}

	sink, err := ToSink(plan, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows (1 matched + 1 left-padded), got %d: %v", len(out), out)
	}
	unmatched := out[1]
	if len(unmatched.Value) != 4 {
		t.Fatalf("expected 4-wide padded row, got %v", unmatched)
	}
	if !unmatched.Value[2].IsMissing() || !unmatched.Value[3].IsMissing() {
		t.Fatalf("expected right side padded with Missing, got %v", unmatched)
	}
}

func TestOuterJoinPadsBothSides(t *testing.T) {
	left := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(100)), // matches
		scalar.NewRow(scalar.Int32(2), scalar.Int32(200)), // unmatched left
	}
	right := []scalar.Row{
		scalar.NewRow(scalar.Int32(1), scalar.Int32(9)),
		scalar.NewRow(scalar.Int32(3), scalar.Int32(7)), // unmatched right
	}
	ctx := &Context{Tables: map[string]TableSource{
		"left":  rowsSource(left),
		"right": rowsSource(right),
	}}
	join := &logical.Join{
		Left:      logical.Scan("left", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		Right:     logical.Scan("right", scalar.Schema{scalar.KindInt32, scalar.KindInt32}),
		LeftKeys:  []expr.Expr{expr.Col(0)},
		RightKeys: []expr.Expr{expr.Col(0)},
		Kind:      logical.JoinOuter,
	}
	plan := &logical.CollectVec{Input: join}

	sink, err := ToSink(plan, ctx)
	if err != nil {
		t.Fatalf("lowering: %v", err)
	}
	out, err := sink.Rows()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 rows (1 matched + 1 left-padded + 1 right-padded), got %d: %v", len(out), out)
	}

	var sawLeftPadded, sawRightPadded bool
	for _, r := range out {
		if len(r.Value) != 4 {
			t.Fatalf("expected 4-wide row, got %v", r)
		}
		if r.Value[0].IsMissing() && r.Value[1].IsMissing() {
			sawRightPadded = true
		}
		if r.Value[2].IsMissing() && r.Value[3].IsMissing() {
			sawLeftPadded = true
		}
	}
	if !sawLeftPadded {
		t.Fatalf("expected an unmatched left row padded on the right side: %v", out)
	}
	if !sawRightPadded {
		t.Fatalf("expected an unmatched right row padded on the left side: %v", out)
	}
}
