// Package scalar implements the tagged numeric scalar that is the atomic
// value type of every row flowing through the engine, plus the row and
// schema types built out of it.
//
// The arithmetic here is total by construction: no operation panics.
// Division by zero and any operation touching NaN converge on NaN; any
// operation touching Missing converges on Missing unless the caller opts
// into SkipMissing. This mirrors the promotion/propagation rules of the
// reference noir_type implementation but drops its panicking comparisons
// and mixed-type panics (see DESIGN.md, "Scalar").
package scalar

import (
	"fmt"
	"math"
)

// Kind tags the variant held by a Scalar.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindFloat32
	KindBool
	KindNaN
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindFloat32:
		return "Float32"
	case KindBool:
		return "Bool"
	case KindNaN:
		return "NaN"
	case KindMissing:
		return "Missing"
	default:
		return "Unknown"
	}
}

// Scalar is a tagged union over {Int32, Float32, Bool, NaN, Missing}.
// The zero value is Missing.
type Scalar struct {
	kind Kind
	i    int32
	f    float32
	b    bool
}

// Int32 builds an Int32 scalar.
func Int32(v int32) Scalar { return Scalar{kind: KindInt32, i: v} }

// Float32 builds a Float32 scalar. A NaN payload is normalized to the NaN kind.
func Float32(v float32) Scalar {
	if isNaN32(v) {
		return NaN()
	}
	return Scalar{kind: KindFloat32, f: v}
}

// Bool builds a Bool scalar.
func Bool(v bool) Scalar { return Scalar{kind: KindBool, b: v} }

// NaN returns the canonical NaN scalar.
func NaN() Scalar { return Scalar{kind: KindNaN} }

// Missing returns the canonical Missing scalar.
func Missing() Scalar { return Scalar{kind: KindMissing} }

func isNaN32(f float32) bool { return f != f }

// Kind reports the scalar's variant.
func (s Scalar) Kind() Kind { return s.kind }

// IsMissing reports whether s is Missing.
func (s Scalar) IsMissing() bool { return s.kind == KindMissing }

// IsNaN reports whether s is NaN.
func (s Scalar) IsNaN() bool { return s.kind == KindNaN }

// AsInt32 returns the underlying int32 and whether the scalar holds one.
func (s Scalar) AsInt32() (int32, bool) { return s.i, s.kind == KindInt32 }

// AsFloat32 returns the underlying float32 and whether the scalar holds one.
func (s Scalar) AsFloat32() (float32, bool) { return s.f, s.kind == KindFloat32 }

// AsBool returns the underlying bool and whether the scalar holds one.
func (s Scalar) AsBool() (bool, bool) { return s.b, s.kind == KindBool }

// Float promotes any numeric scalar to float32; non-numeric scalars return (0,false).
func (s Scalar) Float() (float32, bool) {
	switch s.kind {
	case KindInt32:
		return float32(s.i), true
	case KindFloat32:
		return s.f, true
	default:
		return 0, false
	}
}

func (s Scalar) String() string {
	switch s.kind {
	case KindInt32:
		return fmt.Sprintf("%d", s.i)
	case KindFloat32:
		return fmt.Sprintf("%g", s.f)
	case KindBool:
		return fmt.Sprintf("%t", s.b)
	case KindNaN:
		return "NaN"
	case KindMissing:
		return "Missing"
	default:
		return "?"
	}
}

// propagate applies the Missing/NaN propagation rule shared by every binary
// numeric operator: Missing beats NaN beats any real computation.
func propagate(a, b Scalar) (Scalar, bool) {
	if a.kind == KindMissing || b.kind == KindMissing {
		return Missing(), true
	}
	if a.kind == KindNaN || b.kind == KindNaN {
		return NaN(), true
	}
	return Scalar{}, false
}

func bothNumeric(a, b Scalar) bool {
	return (a.kind == KindInt32 || a.kind == KindFloat32) &&
		(b.kind == KindInt32 || b.kind == KindFloat32)
}

// Add computes a + b. Non-numeric operands (Bool against anything, or a
// numeric against Bool) yield NaN rather than panicking.
func (a Scalar) Add(b Scalar) Scalar { return arith(a, b, func(x, y int32) int32 { return x + y }, func(x, y float32) float32 { return x + y }) }

// Sub computes a - b.
func (a Scalar) Sub(b Scalar) Scalar {
	return arith(a, b, func(x, y int32) int32 { return x - y }, func(x, y float32) float32 { return x - y })
}

// Mul computes a * b.
func (a Scalar) Mul(b Scalar) Scalar {
	return arith(a, b, func(x, y int32) int32 { return x * y }, func(x, y float32) float32 { return x * y })
}

func arith(a, b Scalar, intOp func(int32, int32) int32, floatOp func(float32, float32) float32) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	if !bothNumeric(a, b) {
		return NaN()
	}
	if a.kind == KindInt32 && b.kind == KindInt32 {
		return Int32(intOp(a.i, b.i))
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	return Float32(floatOp(af, bf))
}

// Div computes a / b, always producing a Float32 (matching the reference
// implementation's integer-division promotion) or NaN on division by zero.
func (a Scalar) Div(b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	if !bothNumeric(a, b) {
		return NaN()
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	if bf == 0 {
		return NaN()
	}
	return Float32(af / bf)
}

// Mod computes a % b. Division by zero yields NaN.
func (a Scalar) Mod(b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	if !bothNumeric(a, b) {
		return NaN()
	}
	if a.kind == KindInt32 && b.kind == KindInt32 {
		if b.i == 0 {
			return NaN()
		}
		return Int32(a.i % b.i)
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	if bf == 0 {
		return NaN()
	}
	return Float32(float32(math.Mod(float64(af), float64(bf))))
}

// Xor computes a ^ b for Int32/Int32 or Bool/Bool operands; mixed kinds yield NaN.
func (a Scalar) Xor(b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	if a.kind == KindInt32 && b.kind == KindInt32 {
		return Int32(a.i ^ b.i)
	}
	if a.kind == KindBool && b.kind == KindBool {
		return Bool(a.b != b.b)
	}
	return NaN()
}

// And computes logical a && b.
func (a Scalar) And(b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	ab, aok := a.AsBool()
	bb, bok := b.AsBool()
	if !aok || !bok {
		return NaN()
	}
	return Bool(ab && bb)
}

// Or computes logical a || b.
func (a Scalar) Or(b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	ab, aok := a.AsBool()
	bb, bok := b.AsBool()
	if !aok || !bok {
		return NaN()
	}
	return Bool(ab || bb)
}

// Sqrt returns the square root; negative inputs yield NaN, matching total
// arithmetic rather than the panicking reference behavior.
func (a Scalar) Sqrt() Scalar {
	f, ok := a.Float()
	if a.kind == KindMissing {
		return Missing()
	}
	if !ok {
		return NaN()
	}
	if f < 0 {
		return NaN()
	}
	r := float32(math.Sqrt(float64(f)))
	if a.kind == KindInt32 {
		return Float32(r)
	}
	return Float32(r)
}

// Floor, Ceil, Round, Abs preserve Int32 kind on Int32 input (identity) and
// apply the corresponding math function on Float32 input.
func (a Scalar) Floor() Scalar { return unaryRound(a, math.Floor) }
func (a Scalar) Ceil() Scalar  { return unaryRound(a, math.Ceil) }
func (a Scalar) Round() Scalar { return unaryRound(a, math.Round) }

func unaryRound(a Scalar, fn func(float64) float64) Scalar {
	switch a.kind {
	case KindInt32:
		return a
	case KindFloat32:
		return Float32(float32(fn(float64(a.f))))
	case KindMissing:
		return Missing()
	default:
		return NaN()
	}
}

// Abs returns the absolute value, preserving kind.
func (a Scalar) Abs() Scalar {
	switch a.kind {
	case KindInt32:
		if a.i < 0 {
			return Int32(-a.i)
		}
		return a
	case KindFloat32:
		return Float32(float32(math.Abs(float64(a.f))))
	case KindMissing:
		return Missing()
	default:
		return NaN()
	}
}

// Neg returns the negation.
func (a Scalar) Neg() Scalar {
	switch a.kind {
	case KindInt32:
		return Int32(-a.i)
	case KindFloat32:
		return Float32(-a.f)
	case KindBool:
		return Bool(!a.b)
	case KindMissing:
		return Missing()
	default:
		return NaN()
	}
}

// rank fixes the total order discipline: Missing < NaN < numerics/bool.
func (s Scalar) rank() int {
	switch s.kind {
	case KindMissing:
		return 0
	case KindNaN:
		return 1
	default:
		return 2
	}
}

// Compare implements the total order over scalars: Missing < NaN <
// numerics, with Int32/Float32 compared by implicit promotion to float32,
// and Bool ordered false < true alongside numerics at rank 2 (booleans and
// numerics never compare equal unless both are Bool).
func (a Scalar) Compare(b Scalar) int {
	ra, rb := a.rank(), b.rank()
	if ra != rb {
		return ra - rb
	}
	if ra != 2 {
		return 0 // both Missing, or both NaN: equal rank, no finer order
	}
	// both at rank 2: numerics compare by value, Bool compares to Bool;
	// a Bool sorts before any numeric, for totality.
	if a.kind == KindBool && b.kind == KindBool {
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	}
	if a.kind == KindBool || b.kind == KindBool {
		if a.kind == KindBool {
			return -1
		}
		return 1
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

// Less reports a < b under the total order.
func (a Scalar) Less(b Scalar) bool { return a.Compare(b) < 0 }

// Eq implements structural equality: NaN never equals NaN, Missing equals
// Missing, numerics compare across kinds by value.
func (a Scalar) Eq(b Scalar) bool {
	if a.kind == KindNaN || b.kind == KindNaN {
		return false
	}
	if a.kind == KindMissing || b.kind == KindMissing {
		return a.kind == b.kind
	}
	if a.kind == KindBool || b.kind == KindBool {
		return a.kind == b.kind && a.b == b.b
	}
	af, _ := a.Float()
	bf, _ := b.Float()
	return af == bf
}

// CompareOp evaluates one of the six relational operators, always
// producing a Bool (or NaN/Missing on propagation), never panicking.
func (a Scalar) CompareOp(op string, b Scalar) Scalar {
	if r, ok := propagate(a, b); ok {
		return r
	}
	switch op {
	case "==":
		return Bool(a.Eq(b))
	case "!=":
		return Bool(!a.Eq(b))
	case "<":
		return Bool(a.Compare(b) < 0)
	case "<=":
		return Bool(a.Compare(b) <= 0)
	case ">":
		return Bool(a.Compare(b) > 0)
	case ">=":
		return Bool(a.Compare(b) >= 0)
	default:
		return NaN()
	}
}
