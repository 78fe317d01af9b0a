package expr

import (
	"math"

	"github.com/rosscartlidge/dataflow/pkg/scalar"
)

// CompiledFunc is the native-ABI function a compiled expression lowers to:
// given a row, it returns a packed uint64 whose low 32 bits are the scalar
// kind discriminant and whose high 32 bits are the value bits (§4.2, §9
// "JIT ABI"). The reference implementation emits this packing from
// Cranelift-generated machine code; this rendition has the compiler emit a
// Go closure instead — idiomatic Go has no equivalent in-process codegen
// facility available in the examples corpus — but the packed-word contract
// at the boundary is identical, which is what the round-trip property
// (§8.4) actually requires.
type CompiledFunc func(row scalar.Row) uint64

// Pack encodes a scalar into the packed-u64 ABI: discriminant in the low 32
// bits, value bits in the high 32 bits.
func Pack(s scalar.Scalar) uint64 {
	var bits uint32
	switch s.Kind() {
	case scalar.KindInt32:
		v, _ := s.AsInt32()
		bits = uint32(v)
	case scalar.KindFloat32:
		v, _ := s.AsFloat32()
		bits = math.Float32bits(v)
	case scalar.KindBool:
		v, _ := s.AsBool()
		if v {
			bits = 1
		}
	}
	return uint64(bits)<<32 | uint64(uint32(s.Kind()))
}

// Unpack decodes the packed-u64 ABI back into a Scalar.
func Unpack(packed uint64) scalar.Scalar {
	kind := scalar.Kind(uint32(packed))
	bits := uint32(packed >> 32)
	switch kind {
	case scalar.KindInt32:
		return scalar.Int32(int32(bits))
	case scalar.KindFloat32:
		return scalar.Float32(math.Float32frombits(bits))
	case scalar.KindBool:
		return scalar.Bool(bits != 0)
	case scalar.KindNaN:
		return scalar.NaN()
	default:
		return scalar.Missing()
	}
}

// Compiled is a leaf node that is immune to further rewriting (§3 invariant
// 1: "a compiled node is a leaf with respect to transformation"). It holds
// both the native-ABI closure and the source tree it was compiled from, for
// debugging and for the idempotence property in §8
// ("compile(compile(e).inner, S) == compile(e, S)").
type Compiled struct {
	Fn     CompiledFunc
	Source Expr
}

func (c Compiled) Evaluate(row scalar.Row) scalar.Scalar { return Unpack(c.Fn(row)) }
func (c Compiled) ColumnSet() map[int]struct{}           { return c.Source.ColumnSet() }
func (c Compiled) ShiftLeft(int) Expr                    { return c } // leaf: no rewriter may mutate it
func (c Compiled) Depth() int                            { return 1 }
func (c Compiled) String() string                        { return "compiled(" + c.Source.String() + ")" }
func (c Compiled) ResultKind(s scalar.Schema) scalar.Kind { return c.Source.ResultKind(s) }

// Compile lowers e to a Compiled node wrapping a native-ABI closure.
// Aggregate nodes, Empty nodes, and already-Compiled nodes cannot be
// compiled further and panic, matching §4.2's "unsupported constructs ...
// panic at compile time — the compiler only handles pure scalar
// expressions over one row."
func Compile(e Expr, schema scalar.Schema) Compiled {
	switch e.(type) {
	case Aggregate:
		panic("expr: cannot compile an Aggregate node")
	case Empty:
		panic("expr: cannot compile an Empty node")
	case Compiled:
		panic("expr: cannot recompile an already-Compiled node")
	}
	fn := buildClosure(e)
	return Compiled{Fn: fn, Source: e}
}

// buildClosure recursively builds the native-ABI closure tree. Each
// sub-closure returns a packed uint64 directly so that binary operator
// sites only ever unpack/repack once per node, mirroring the Cranelift
// translator's per-node packing discipline in the reference jit.rs.
func buildClosure(e Expr) CompiledFunc {
	switch n := e.(type) {
	case Column:
		pos := n.Pos
		return func(row scalar.Row) uint64 { return Pack(row.At(pos)) }
	case Literal:
		packed := Pack(n.Value)
		return func(scalar.Row) uint64 { return packed }
	case Binary:
		left := buildClosure(n.Left)
		right := buildClosure(n.Right)
		op := n.Op
		return func(row scalar.Row) uint64 {
			l := Unpack(left(row))
			r := Unpack(right(row))
			return Pack(applyBinOp(op, l, r))
		}
	case Unary:
		inner := buildClosure(n.Inner)
		u := n
		return func(row scalar.Row) uint64 {
			v := Unpack(inner(row))
			return Pack(Unary{Op: u.Op, Inner: Lit(v)}.Evaluate(scalar.Row{}))
		}
	default:
		// Reached only via a rewriter that inserted a node type unknown to
		// the compiler; per §7 this is a contract violation.
		panic("expr: cannot compile unsupported node")
	}
}
