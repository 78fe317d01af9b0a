// Package expr implements the scalar expression tree shared by the
// optimizer, the physical operators, and the JIT: column references,
// literals, unary/binary operators, and aggregator markers, plus an
// interpreter (Evaluate) and a compiler (Compile) that lowers a tree to a
// native-ABI closure (see compile.go).
package expr

import (
	"fmt"

	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

// BinOp enumerates the binary operators of the DSL.
type BinOp string

const (
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpMod BinOp = "%"
	OpEq  BinOp = "=="
	OpNeq BinOp = "!="
	OpLt  BinOp = "<"
	OpLte BinOp = "<="
	OpGt  BinOp = ">"
	OpGte BinOp = ">="
	OpAnd BinOp = "&&"
	OpOr  BinOp = "||"
	OpXor BinOp = "^"
)

func (op BinOp) isComparison() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// UnaryOp enumerates the unary operators of the DSL.
type UnaryOp string

const (
	OpFloor UnaryOp = "floor"
	OpCeil  UnaryOp = "ceil"
	OpRound UnaryOp = "round"
	OpAbs   UnaryOp = "abs"
	OpSqrt  UnaryOp = "sqrt"
)

// AggKind enumerates the aggregator markers recognized by the optimizer's
// group-by/select fusion rule. Aggregate nodes are never compiled (§4.2);
// only their Inner expression is.
type AggKind string

const (
	AggSum   AggKind = "sum"
	AggCount AggKind = "count"
	AggMin   AggKind = "min"
	AggMax   AggKind = "max"
	AggAvg   AggKind = "avg"
	AggVal   AggKind = "val"
)

// Expr is the shared tree type. Every node can be evaluated directly
// (interpreted) and reports the set of row columns it reads.
type Expr interface {
	// Evaluate walks the tree against row, returning a scalar. Never panics
	// except for Empty and Aggregate nodes, which are contract violations
	// if reached directly (aggregates are evaluated by the fold operator,
	// not by Evaluate).
	Evaluate(row scalar.Row) scalar.Scalar
	// ColumnSet returns the set of value-relative column positions read by
	// this expression, driving projection pushdown.
	ColumnSet() map[int]struct{}
	// ShiftLeft returns a copy of the tree with every column reference
	// reduced by n; used to renumber a join's right-hand side after the
	// two schemas are concatenated.
	ShiftLeft(n int) Expr
	// ResultKind reports the scalar kind this expression produces over s.
	ResultKind(s scalar.Schema) scalar.Kind
	// Depth returns the tree depth; well-defined only for non-aggregate,
	// non-empty, uncompiled trees (§3).
	Depth() int
	fmt.Stringer
}

// Column is a column reference by value-relative position.
type Column struct{ Pos int }

func Col(pos int) Column { return Column{Pos: pos} }

func (c Column) Evaluate(row scalar.Row) scalar.Scalar { return row.At(c.Pos) }
func (c Column) ColumnSet() map[int]struct{}           { return map[int]struct{}{c.Pos: {}} }
func (c Column) ShiftLeft(n int) Expr                  { return Column{Pos: c.Pos - n} }
func (c Column) Depth() int                            { return 1 }
func (c Column) String() string                        { return fmt.Sprintf("col(%d)", c.Pos) }
func (c Column) ResultKind(s scalar.Schema) scalar.Kind {
	if c.Pos < 0 || c.Pos >= len(s) {
		return scalar.KindMissing
	}
	return s[c.Pos]
}

// Literal is a constant scalar.
type Literal struct{ Value scalar.Scalar }

func Lit(v scalar.Scalar) Literal                      { return Literal{Value: v} }
func I(v int32) Literal                                { return Literal{Value: scalar.Int32(v)} }
func F(v float32) Literal                              { return Literal{Value: scalar.Float32(v)} }
func B(v bool) Literal                                 { return Literal{Value: scalar.Bool(v)} }
func (l Literal) Evaluate(scalar.Row) scalar.Scalar    { return l.Value }
func (l Literal) ColumnSet() map[int]struct{}          { return map[int]struct{}{} }
func (l Literal) ShiftLeft(int) Expr                   { return l }
func (l Literal) Depth() int                           { return 1 }
func (l Literal) String() string                       { return l.Value.String() }
func (l Literal) ResultKind(scalar.Schema) scalar.Kind { return l.Value.Kind() }

// Binary is a binary operator node.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

func (b Binary) Evaluate(row scalar.Row) scalar.Scalar {
	l := b.Left.Evaluate(row)
	r := b.Right.Evaluate(row)
	return applyBinOp(b.Op, l, r)
}

func applyBinOp(op BinOp, l, r scalar.Scalar) scalar.Scalar {
	switch op {
	case OpAdd:
		return l.Add(r)
	case OpSub:
		return l.Sub(r)
	case OpMul:
		return l.Mul(r)
	case OpDiv:
		return l.Div(r)
	case OpMod:
		return l.Mod(r)
	case OpAnd:
		return l.And(r)
	case OpOr:
		return l.Or(r)
	case OpXor:
		return l.Xor(r)
	default:
		return l.CompareOp(string(op), r)
	}
}

func (b Binary) ColumnSet() map[int]struct{} {
	out := b.Left.ColumnSet()
	for k := range b.Right.ColumnSet() {
		out[k] = struct{}{}
	}
	return out
}

func (b Binary) ShiftLeft(n int) Expr {
	return Binary{Op: b.Op, Left: b.Left.ShiftLeft(n), Right: b.Right.ShiftLeft(n)}
}

func (b Binary) Depth() int {
	ld, rd := b.Left.Depth(), b.Right.Depth()
	if ld > rd {
		return ld + 1
	}
	return rd + 1
}

func (b Binary) String() string { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }

func (b Binary) ResultKind(s scalar.Schema) scalar.Kind {
	if b.Op.isComparison() || b.Op == OpAnd || b.Op == OpOr {
		return scalar.KindBool
	}
	lk := b.Left.ResultKind(s)
	rk := b.Right.ResultKind(s)
	if b.Op == OpXor && lk == scalar.KindBool && rk == scalar.KindBool {
		return scalar.KindBool
	}
	if lk == scalar.KindInt32 && rk == scalar.KindInt32 {
		if b.Op == OpDiv {
			return scalar.KindFloat32
		}
		return scalar.KindInt32
	}
	return scalar.KindFloat32
}

// And is a convenience constructor used by the predicate pushdown rule to
// conjoin two atoms (mirrors the reference `p.and(q)` helper).
func And(a, b Expr) Expr { return Binary{Op: OpAnd, Left: a, Right: b} }

// Unary is a unary operator node.
type Unary struct {
	Op    UnaryOp
	Inner Expr
}

func (u Unary) Evaluate(row scalar.Row) scalar.Scalar {
	v := u.Inner.Evaluate(row)
	switch u.Op {
	case OpFloor:
		return v.Floor()
	case OpCeil:
		return v.Ceil()
	case OpRound:
		return v.Round()
	case OpAbs:
		return v.Abs()
	case OpSqrt:
		return v.Sqrt()
	default:
		return scalar.NaN()
	}
}

func (u Unary) ColumnSet() map[int]struct{} { return u.Inner.ColumnSet() }
func (u Unary) ShiftLeft(n int) Expr        { return Unary{Op: u.Op, Inner: u.Inner.ShiftLeft(n)} }
func (u Unary) Depth() int                  { return u.Inner.Depth() + 1 }
func (u Unary) String() string              { return fmt.Sprintf("%s(%s)", u.Op, u.Inner) }

func (u Unary) ResultKind(s scalar.Schema) scalar.Kind {
	if u.Op == OpSqrt {
		return scalar.KindFloat32
	}
	return u.Inner.ResultKind(s)
}

// Aggregate marks a column (or expression) as folded by a GroupBySelect;
// it is never compiled and never evaluated directly against a single row
// (the optimizer lowers it into a fold accumulator, see pkg/optimizer).
type Aggregate struct {
	Kind  AggKind
	Inner Expr
}

func (a Aggregate) Evaluate(scalar.Row) scalar.Scalar {
	panic("expr: Aggregate node evaluated directly — must be lowered by GroupBySelect fold")
}
func (a Aggregate) ColumnSet() map[int]struct{} { return a.Inner.ColumnSet() }
func (a Aggregate) ShiftLeft(n int) Expr        { return Aggregate{Kind: a.Kind, Inner: a.Inner.ShiftLeft(n)} }
func (a Aggregate) Depth() int                  { return -1 }
func (a Aggregate) String() string              { return fmt.Sprintf("%s(%s)", a.Kind, a.Inner) }

func (a Aggregate) ResultKind(s scalar.Schema) scalar.Kind {
	if a.Kind == AggCount {
		return scalar.KindInt32
	}
	if a.Kind == AggAvg {
		return scalar.KindFloat32
	}
	return a.Inner.ResultKind(s)
}

// Empty is the empty expression placeholder; evaluating or compiling it is
// a contract violation (§7: "Operator contract violation ... Panic").
type Empty struct{}

func (Empty) Evaluate(scalar.Row) scalar.Scalar    { panic("expr: Empty node evaluated") }
func (Empty) ColumnSet() map[int]struct{}          { return map[int]struct{}{} }
func (Empty) ShiftLeft(int) Expr                   { return Empty{} }
func (Empty) Depth() int                           { panic("expr: Depth of Empty is undefined") }
func (Empty) String() string                       { return "<empty>" }
func (Empty) ResultKind(scalar.Schema) scalar.Kind { return scalar.KindMissing }

// IsAggregate reports whether e is (or directly wraps) an Aggregate node;
// used by Select lowering to decide between a fold and a per-row map.
func IsAggregate(e Expr) bool {
	_, ok := e.(Aggregate)
	return ok
}
