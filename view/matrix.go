package view

import "math"

// Matrix is a row-major 2x3 affine transform over canvas/screen space:
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
//
// The view transform composes zoom, roll, mirror and pan into one of
// these; the executor uploads the same six coefficients as part of its
// view uniform.
type Matrix struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the no-op transform.
func Identity() Matrix {
	return Matrix{A: 1, E: 1}
}

// Translate returns a pure translation by (x, y).
func Translate(x, y float64) Matrix {
	return Matrix{A: 1, C: x, E: 1, F: y}
}

// Scale returns a pure scale by (sx, sy) about the origin.
func Scale(sx, sy float64) Matrix {
	return Matrix{A: sx, E: sy}
}

// Rotate returns a counter-clockwise rotation by angle radians about the
// origin.
func Rotate(angle float64) Matrix {
	sin, cos := math.Sincos(angle)
	return Matrix{A: cos, B: -sin, D: sin, E: cos}
}

// Multiply returns m * other, the transform applying other first and m
// second.
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		A: m.A*other.A + m.B*other.D,
		B: m.A*other.B + m.B*other.E,
		C: m.A*other.C + m.B*other.F + m.C,
		D: m.D*other.A + m.E*other.D,
		E: m.D*other.B + m.E*other.E,
		F: m.D*other.C + m.E*other.F + m.F,
	}
}

// TransformPoint applies m to the point (x, y).
func (m Matrix) TransformPoint(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// TransformVector applies m's linear part to (x, y), ignoring
// translation. Directions and deltas transform this way.
func (m Matrix) TransformVector(x, y float64) (float64, float64) {
	return m.A*x + m.B*y, m.D*x + m.E*y
}

// Determinant returns the determinant of m's linear part. Zero means m
// collapses the plane and has no inverse.
func (m Matrix) Determinant() float64 {
	return m.A*m.E - m.B*m.D
}

// Invert returns the inverse transform. The caller must have checked
// Determinant is usable; a singular matrix inverts to garbage, not a
// panic, matching how the view transform guards inversion itself.
func (m Matrix) Invert() Matrix {
	det := m.Determinant()
	inv := 1 / det
	return Matrix{
		A: m.E * inv,
		B: -m.B * inv,
		C: (m.B*m.F - m.E*m.C) * inv,
		D: -m.D * inv,
		E: m.A * inv,
		F: (m.D*m.C - m.A*m.F) * inv,
	}
}

// IsIdentity reports whether m is exactly the identity.
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// ScaleFactor returns the average absolute scale m applies, used to size
// stroke-width style quantities under non-uniform zoom.
func (m Matrix) ScaleFactor() float64 {
	sx := math.Hypot(m.A, m.D)
	sy := math.Hypot(m.B, m.E)
	return (sx + sy) / 2
}

// Translation returns m's translation components.
func (m Matrix) Translation() (x, y float64) {
	return m.C, m.F
}
