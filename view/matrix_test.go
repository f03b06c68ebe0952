package view

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestIdentityTransformsNothing(t *testing.T) {
	m := Identity()
	if !m.IsIdentity() {
		t.Fatal("Identity().IsIdentity() = false")
	}
	x, y := m.TransformPoint(12.5, -3)
	if x != 12.5 || y != -3 {
		t.Fatalf("TransformPoint = (%v,%v), want (12.5,-3)", x, y)
	}
}

func TestTranslateMovesPointsNotVectors(t *testing.T) {
	m := Translate(10, -5)
	if x, y := m.TransformPoint(1, 2); x != 11 || y != -3 {
		t.Fatalf("point = (%v,%v), want (11,-3)", x, y)
	}
	if x, y := m.TransformVector(1, 2); x != 1 || y != 2 {
		t.Fatalf("vector = (%v,%v), want (1,2) unchanged by translation", x, y)
	}
	if tx, ty := m.Translation(); tx != 10 || ty != -5 {
		t.Fatalf("Translation = (%v,%v), want (10,-5)", tx, ty)
	}
}

func TestScaleAndDeterminant(t *testing.T) {
	m := Scale(2, 3)
	if x, y := m.TransformPoint(4, 5); x != 8 || y != 15 {
		t.Fatalf("point = (%v,%v), want (8,15)", x, y)
	}
	if det := m.Determinant(); det != 6 {
		t.Fatalf("Determinant = %v, want 6", det)
	}
	if sf := m.ScaleFactor(); !almostEqual(sf, 2.5) {
		t.Fatalf("ScaleFactor = %v, want 2.5", sf)
	}
}

func TestRotateQuarterTurn(t *testing.T) {
	m := Rotate(math.Pi / 2)
	x, y := m.TransformPoint(1, 0)
	if !almostEqual(x, 0) || !almostEqual(y, 1) {
		t.Fatalf("quarter turn of (1,0) = (%v,%v), want (0,1)", x, y)
	}
}

func TestMultiplyAppliesRightOperandFirst(t *testing.T) {
	// Scale-then-translate differs from translate-then-scale; m.Multiply
	// applies the right operand first.
	scaleThenTranslate := Translate(10, 0).Multiply(Scale(2, 2))
	if x, _ := scaleThenTranslate.TransformPoint(1, 0); x != 12 {
		t.Fatalf("scale-then-translate x = %v, want 12", x)
	}
	translateThenScale := Scale(2, 2).Multiply(Translate(10, 0))
	if x, _ := translateThenScale.TransformPoint(1, 0); x != 22 {
		t.Fatalf("translate-then-scale x = %v, want 22", x)
	}
}

func TestInvertRoundTrips(t *testing.T) {
	m := Translate(7, -2).Multiply(Rotate(0.3)).Multiply(Scale(2, 0.5))
	inv := m.Invert()

	px, py := m.TransformPoint(3, 4)
	bx, by := inv.TransformPoint(px, py)
	if !almostEqual(bx, 3) || !almostEqual(by, 4) {
		t.Fatalf("round trip of (3,4) = (%v,%v)", bx, by)
	}

	composed := m.Multiply(inv)
	if !almostEqual(composed.A, 1) || !almostEqual(composed.E, 1) ||
		!almostEqual(composed.B, 0) || !almostEqual(composed.D, 0) ||
		!almostEqual(composed.C, 0) || !almostEqual(composed.F, 0) {
		t.Fatalf("m * m^-1 = %+v, want identity", composed)
	}
}
