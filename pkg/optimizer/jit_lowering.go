package optimizer

import (
	"github.com/rosscartlidge/dataflow/pkg/expr"
	"github.com/rosscartlidge/dataflow/pkg/logical"
	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

// lowerJIT recurses over the plan, replacing every scalar expression that
// is not an Aggregate (which §4.2 forbids compiling directly — only its
// Inner is eligible) with its Compile()'d form, using the schema of the
// expression's own input node as the compilation context.
func lowerJIT(plan logical.Plan) logical.Plan {
	switch p := plan.(type) {
	case *logical.TableScan:
		if p.Predicate == nil {
			return p
		}
		return &logical.TableScan{Path: p.Path, Predicate: compileIfPossible(p.Predicate, p.Sch), Projections: p.Projections, Sch: p.Sch}

	case *logical.Filter:
		newInput := lowerJIT(p.Input)
		return &logical.Filter{Predicate: compileIfPossible(p.Predicate, newInput.Schema()), Input: newInput}

	case *logical.Select:
		newInput := lowerJIT(p.Input)
		sch := newInput.Schema()
		cols := make([]expr.Expr, len(p.Columns))
		for i, c := range p.Columns {
			cols[i] = compileIfPossible(c, sch)
		}
		return &logical.Select{Columns: cols, Input: newInput}

	case *logical.GroupBySelect:
		newInput := lowerJIT(p.Input)
		sch := newInput.Schema()
		aggs := make([]expr.Expr, len(p.Aggs))
		for i, a := range p.Aggs {
			aggs[i] = compileIfPossible(a, sch)
		}
		return &logical.GroupBySelect{Input: newInput, Keys: p.Keys, Aggs: aggs}

	case *logical.Shuffle:
		return &logical.Shuffle{Input: lowerJIT(p.Input)}
	case *logical.GroupBy:
		return &logical.GroupBy{Keys: p.Keys, Input: lowerJIT(p.Input)}
	case *logical.DropKey:
		return &logical.DropKey{Input: lowerJIT(p.Input)}
	case *logical.DropColumns:
		return &logical.DropColumns{Input: lowerJIT(p.Input), Columns: p.Columns}
	case *logical.CollectVec:
		return &logical.CollectVec{Input: lowerJIT(p.Input)}
	case *logical.Join:
		return &logical.Join{Left: lowerJIT(p.Left), Right: lowerJIT(p.Right), LeftKeys: p.LeftKeys, RightKeys: p.RightKeys, Kind: p.Kind}
	default:
		return plan
	}
}

// compileIfPossible compiles e unless it is (or contains as its top node)
// an Aggregate — aggregates are folded by the physical operator, never
// compiled, per §4.2. An Aggregate's Inner expression is compiled in place
// so the fold still benefits from the JIT for its per-row evaluation. The
// schema parameter identifies the compilation context for callers; the
// closure compiler itself is schema-agnostic (it reads columns out of
// whatever row it is handed), so it is accepted and otherwise unused here.
func compileIfPossible(e expr.Expr, schema scalar.Schema) expr.Expr {
	return compileExpr(e)
}

func compileExpr(e expr.Expr) expr.Expr {
	if agg, ok := e.(expr.Aggregate); ok {
		return expr.Aggregate{Kind: agg.Kind, Inner: safeCompile(agg.Inner)}
	}
	return safeCompile(e)
}

func safeCompile(e expr.Expr) expr.Expr {
	switch e.(type) {
	case expr.Compiled, expr.Empty, expr.Aggregate:
		return e
	}
	return expr.Compile(e, nil)
}
