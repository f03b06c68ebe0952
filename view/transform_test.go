package view

import "testing"

func TestZoomAboutPointKeepsAnchorScreenPosition(t *testing.T) {
	transform := NewViewTransform()
	if err := transform.PanBy(20, -10); err != nil {
		t.Fatalf("PanBy: %v", err)
	}

	if err := transform.ZoomAboutPoint(2.0, 100, 50); err != nil {
		t.Fatalf("ZoomAboutPoint: %v", err)
	}

	if got, want := transform.Zoom(), 2.0; abs(got-want) > 1e-9 {
		t.Errorf("Zoom() = %v, want %v", got, want)
	}
	if got, want := transform.OffsetX(), -60.0; abs(got-want) > 1e-9 {
		t.Errorf("OffsetX() = %v, want %v", got, want)
	}
	if got, want := transform.OffsetY(), -70.0; abs(got-want) > 1e-9 {
		t.Errorf("OffsetY() = %v, want %v", got, want)
	}
}

func TestZoomAboutPointRejectsInvalidInputs(t *testing.T) {
	transform := NewViewTransform()

	var zerr *ViewTransformError
	err := transform.ZoomAboutPoint(0, 10, 20)
	if err == nil {
		t.Fatal("expected error for zero zoom factor")
	}
	if ve, ok := err.(*ViewTransformError); !ok || ve.Kind != InvalidZoom {
		t.Errorf("err = %v, want InvalidZoom", err)
	}
	_ = zerr
}

func TestScreenToCanvasRoundTripsThroughZoomAndPan(t *testing.T) {
	transform := NewViewTransform()
	if err := transform.SetZoom(2.0); err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	if err := transform.PanBy(50, 25); err != nil {
		t.Fatalf("PanBy: %v", err)
	}

	screenX, screenY := transform.CanvasToScreen(400, 100)
	canvasX, canvasY, err := transform.ScreenToCanvas(screenX, screenY)
	if err != nil {
		t.Fatalf("ScreenToCanvas: %v", err)
	}
	if abs(canvasX-400) > 1e-9 || abs(canvasY-100) > 1e-9 {
		t.Errorf("round trip = (%v, %v), want (400, 100)", canvasX, canvasY)
	}
}

func TestToClipMatrix4x4RejectsInvalidViewport(t *testing.T) {
	transform := NewViewTransform()
	if _, err := transform.ToClipMatrix4x4(0, 100); err == nil {
		t.Fatal("expected InvalidViewport error")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
