package view

import (
	"fmt"
	"math"
)

// ViewTransformError classifies a rejected ViewTransform mutation.
type ViewTransformError struct {
	Kind ViewTransformErrorKind
}

type ViewTransformErrorKind uint8

const (
	InvalidZoom ViewTransformErrorKind = iota
	InvalidViewport
	NonFiniteValue
)

func (e *ViewTransformError) Error() string {
	switch e.Kind {
	case InvalidZoom:
		return "view: invalid zoom"
	case InvalidViewport:
		return "view: invalid viewport"
	case NonFiniteValue:
		return "view: non-finite value"
	default:
		return "view: unknown error"
	}
}

// ViewTransform is the pan/zoom/rotate/mirror state the engine applies
// between canvas space and screen space. Zero value is the identity view
// (zoom 1, no pan, no rotation, no mirroring) except callers should use
// NewViewTransform, which documents that default explicitly.
type ViewTransform struct {
	zoom        float64
	offsetX     float64
	offsetY     float64
	rollRadians float64
	mirrorX     bool
	mirrorY     bool
}

// NewViewTransform returns the identity view transform.
func NewViewTransform() ViewTransform {
	return ViewTransform{zoom: 1}
}

func (t ViewTransform) Zoom() float64        { return t.zoom }
func (t ViewTransform) OffsetX() float64     { return t.offsetX }
func (t ViewTransform) OffsetY() float64     { return t.offsetY }
func (t ViewTransform) RollRadians() float64 { return t.rollRadians }
func (t ViewTransform) MirrorX() bool        { return t.mirrorX }
func (t ViewTransform) MirrorY() bool        { return t.mirrorY }

// SetZoom replaces the absolute zoom factor.
func (t *ViewTransform) SetZoom(zoom float64) error {
	if !isFinite(zoom) || zoom <= 0 {
		return &ViewTransformError{Kind: InvalidZoom}
	}
	t.zoom = zoom
	return nil
}

// ZoomAboutPoint multiplies the current zoom by zoomFactor while keeping
// the screen-space point (pointX, pointY) fixed on screen — the
// anchor-preserving zoom used
// by scroll-wheel/pinch gestures.
func (t *ViewTransform) ZoomAboutPoint(zoomFactor, pointX, pointY float64) error {
	if !isFinite(zoomFactor) || zoomFactor <= 0 {
		return &ViewTransformError{Kind: InvalidZoom}
	}
	if !isFinite(pointX) || !isFinite(pointY) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}

	nextZoom := t.zoom * zoomFactor
	if !isFinite(nextZoom) || nextZoom <= 0 {
		return &ViewTransformError{Kind: InvalidZoom}
	}

	keepAnchorScale := 1 - zoomFactor
	nextOffsetX := t.offsetX*zoomFactor + pointX*keepAnchorScale
	nextOffsetY := t.offsetY*zoomFactor + pointY*keepAnchorScale
	if !isFinite(nextOffsetX) || !isFinite(nextOffsetY) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}

	t.zoom = nextZoom
	t.offsetX = nextOffsetX
	t.offsetY = nextOffsetY
	return nil
}

// PanBy translates the view by (deltaX, deltaY) in screen space.
func (t *ViewTransform) PanBy(deltaX, deltaY float64) error {
	if !isFinite(deltaX) || !isFinite(deltaY) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	nextX, nextY := t.offsetX+deltaX, t.offsetY+deltaY
	if !isFinite(nextX) || !isFinite(nextY) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	t.offsetX, t.offsetY = nextX, nextY
	return nil
}

// RotateBy adds deltaRoll radians to the current rotation.
func (t *ViewTransform) RotateBy(deltaRoll float64) error {
	if !isFinite(deltaRoll) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	next := t.rollRadians + deltaRoll
	if !isFinite(next) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	t.rollRadians = next
	return nil
}

// SetMirror replaces the mirror flags outright.
func (t *ViewTransform) SetMirror(mirrorX, mirrorY bool) {
	t.mirrorX, t.mirrorY = mirrorX, mirrorY
}

// FlipAlongScreenXAxis flips the view across the screen's horizontal axis.
func (t *ViewTransform) FlipAlongScreenXAxis() error {
	if !isFinite(t.rollRadians) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	t.rollRadians = -t.rollRadians
	t.mirrorY = !t.mirrorY
	return nil
}

// FlipAlongScreenYAxis flips the view across the screen's vertical axis.
func (t *ViewTransform) FlipAlongScreenYAxis() error {
	if !isFinite(t.rollRadians) {
		return &ViewTransformError{Kind: NonFiniteValue}
	}
	t.rollRadians = -t.rollRadians
	t.mirrorX = !t.mirrorX
	return nil
}

// ToMatrix builds the canvas-to-screen affine matrix for the current view
// state: mirror, rotate, scale by zoom, then translate by the pan offset.
func (t ViewTransform) ToMatrix() Matrix {
	mirrorXScale := 1.0
	if t.mirrorX {
		mirrorXScale = -1.0
	}
	mirrorYScale := 1.0
	if t.mirrorY {
		mirrorYScale = -1.0
	}
	sine, cosine := math.Sin(t.rollRadians), math.Cos(t.rollRadians)

	return Matrix{
		A: t.zoom * cosine * mirrorXScale,
		B: t.zoom * -sine * mirrorYScale,
		C: t.offsetX,
		D: t.zoom * sine * mirrorXScale,
		E: t.zoom * cosine * mirrorYScale,
		F: t.offsetY,
	}
}

// CanvasToScreen maps a canvas-space point to screen space.
func (t ViewTransform) CanvasToScreen(canvasX, canvasY float64) (float64, float64) {
	return t.ToMatrix().TransformPoint(canvasX, canvasY)
}

// ScreenToCanvas maps a screen-space point to canvas space — the inverse
// every pointer sample must pass through before reaching brush
// execution; the engine only ever sees canvas space.
func (t ViewTransform) ScreenToCanvas(screenX, screenY float64) (float64, float64, error) {
	if !isFinite(screenX) || !isFinite(screenY) {
		return 0, 0, &ViewTransformError{Kind: NonFiniteValue}
	}

	m := t.ToMatrix()
	det := m.Determinant()
	if !isFinite(det) || math.Abs(det) <= 1e-12 {
		return 0, 0, &ViewTransformError{Kind: NonFiniteValue}
	}

	inv := m.Invert()
	canvasX, canvasY := inv.TransformPoint(screenX, screenY)
	if !isFinite(canvasX) || !isFinite(canvasY) {
		return 0, 0, &ViewTransformError{Kind: NonFiniteValue}
	}
	return canvasX, canvasY, nil
}

// ToClipMatrix4x4 composes the view matrix with an orthographic
// screen-to-clip-space projection for the given viewport, as a row-major
// 4x4 matrix suitable for a uniform buffer upload. The shader consuming
// this buffer is out of scope; only the matrix math is this package's
// concern.
func (t ViewTransform) ToClipMatrix4x4(viewportWidth, viewportHeight float64) ([16]float64, error) {
	var out [16]float64
	if !isFinite(viewportWidth) || !isFinite(viewportHeight) || viewportWidth <= 0 || viewportHeight <= 0 {
		return out, &ViewTransformError{Kind: InvalidViewport}
	}

	m := t.ToMatrix()
	scaleX := 2.0 / viewportWidth
	scaleY := -2.0 / viewportHeight

	clipA := m.A * scaleX
	clipB := m.B * scaleX
	clipD := m.D * scaleY
	clipE := m.E * scaleY
	clipTx := m.C*scaleX - 1.0
	clipTy := m.F*scaleY + 1.0

	out = [16]float64{
		clipA, clipD, 0, 0,
		clipB, clipE, 0, 0,
		0, 0, 1, 0,
		clipTx, clipTy, 0, 1,
	}
	return out, nil
}

func (t ViewTransform) String() string {
	return fmt.Sprintf("ViewTransform{zoom=%.4f offset=(%.2f,%.2f) roll=%.4f mirror=(%v,%v)}",
		t.zoom, t.offsetX, t.offsetY, t.rollRadians, t.mirrorX, t.mirrorY)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
