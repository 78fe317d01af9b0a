package scalar

import "testing"

func TestArithmeticTotal(t *testing.T) {
	t.Run("DivByZeroYieldsNaN", func(t *testing.T) {
		got := Int32(1).Div(Int32(0))
		if !got.IsNaN() {
			t.Fatalf("expected NaN, got %v", got)
		}
	})

	t.Run("MissingPropagates", func(t *testing.T) {
		got := Int32(1).Add(Missing())
		if !got.IsMissing() {
			t.Fatalf("expected Missing, got %v", got)
		}
	})

	t.Run("NaNPropagates", func(t *testing.T) {
		got := NaN().Mul(Int32(5))
		if !got.IsNaN() {
			t.Fatalf("expected NaN, got %v", got)
		}
	})

	t.Run("IntTimesIntStaysInt", func(t *testing.T) {
		got := Int32(3).Mul(Int32(4))
		v, ok := got.AsInt32()
		if !ok || v != 12 {
			t.Fatalf("expected Int32(12), got %v", got)
		}
	})

	t.Run("IntTimesFloatPromotes", func(t *testing.T) {
		got := Int32(3).Mul(Float32(2.5))
		v, ok := got.AsFloat32()
		if !ok || v != 7.5 {
			t.Fatalf("expected Float32(7.5), got %v", got)
		}
	})

	t.Run("SqrtNegativeYieldsNaN", func(t *testing.T) {
		got := Int32(-4).Sqrt()
		if !got.IsNaN() {
			t.Fatalf("expected NaN, got %v", got)
		}
	})

	t.Run("NeverPanics", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("arithmetic panicked: %v", r)
			}
		}()
		vals := []Scalar{Int32(1), Float32(1.5), Bool(true), NaN(), Missing()}
		for _, a := range vals {
			for _, b := range vals {
				_ = a.Add(b)
				_ = a.Sub(b)
				_ = a.Mul(b)
				_ = a.Div(b)
				_ = a.Mod(b)
				_ = a.Xor(b)
				_ = a.CompareOp("==", b)
				_ = a.Compare(b)
			}
		}
	})
}

func TestOrderingTotal(t *testing.T) {
	t.Run("MissingLessThanNaN", func(t *testing.T) {
		if !Missing().Less(NaN()) {
			t.Fatalf("expected Missing < NaN")
		}
	})

	t.Run("NaNLessThanNumeric", func(t *testing.T) {
		if !NaN().Less(Int32(0)) {
			t.Fatalf("expected NaN < numeric")
		}
	})

	t.Run("MixedKindPromotion", func(t *testing.T) {
		if !Int32(1).Less(Float32(1.5)) {
			t.Fatalf("expected 1 < 1.5")
		}
	})
}

func TestEquality(t *testing.T) {
	t.Run("NaNNeverEqualsItself", func(t *testing.T) {
		if NaN().Eq(NaN()) {
			t.Fatalf("expected NaN != NaN")
		}
	})

	t.Run("CrossKindNumericEquality", func(t *testing.T) {
		if !Int32(2).Eq(Float32(2.0)) {
			t.Fatalf("expected 2 == 2.0")
		}
	})
}

func TestRowKeyOffset(t *testing.T) {
	r := NewRow(Int32(10), Int32(20), Int32(30)).WithKey(1)
	if r.Len() != 2 {
		t.Fatalf("expected value width 2 after keying 1 column, got %d", r.Len())
	}
	if v, _ := r.At(0).AsInt32(); v != 20 {
		t.Fatalf("expected value[0] == 20 post-key-offset, got %v", r.At(0))
	}
	if len(r.Key) != 1 {
		t.Fatalf("expected key width 1, got %d", len(r.Key))
	}
}
