package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFromPolygon_AxisAligned(t *testing.T) {
	poly := []float64{0.1, 0.1, 0.3, 0.1, 0.3, 0.3, 0.1, 0.3}
	box := FromPolygon(poly)

	if !almostEqual(box.XMin, 0.1) || !almostEqual(box.YMin, 0.1) ||
		!almostEqual(box.XMax, 0.3) || !almostEqual(box.YMax, 0.3) {
		t.Errorf("unexpected box: %+v", box)
	}
}

func TestFromPolygon_Rotated(t *testing.T) {
	// A skewed quadrilateral still reduces to its min/max envelope.
	poly := []float64{0.2, 0.1, 0.5, 0.15, 0.45, 0.4, 0.15, 0.35}
	box := FromPolygon(poly)

	if !almostEqual(box.XMin, 0.15) || !almostEqual(box.XMax, 0.5) {
		t.Errorf("unexpected x range: %+v", box)
	}
	if !almostEqual(box.YMin, 0.1) || !almostEqual(box.YMax, 0.4) {
		t.Errorf("unexpected y range: %+v", box)
	}
}

func TestFromPolygon_MalformedFallsBackToFullPage(t *testing.T) {
	for _, poly := range [][]float64{nil, {}, {0.1, 0.2}, {0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}} {
		box := FromPolygon(poly)
		if box != FullPage() {
			t.Errorf("expected full-page box for %v, got %+v", poly, box)
		}
	}
}

func TestToPolygon_RoundTrip(t *testing.T) {
	box := BoundingBox{XMin: 0.1, YMin: 0.2, XMax: 0.6, YMax: 0.7}
	poly := box.ToPolygon()

	if len(poly) != 1 || len(poly[0]) != 8 {
		t.Fatalf("expected [1][8] polygon, got %v", poly)
	}
	if got := FromPolygon(poly[0]); got != box {
		t.Errorf("round trip mismatch: %+v != %+v", got, box)
	}
}

func TestScale_TightRect(t *testing.T) {
	box := BoundingBox{XMin: 0.25, YMin: 0.5, XMax: 0.75, YMax: 0.75}
	r := box.Scale(800, 1000)

	if !almostEqual(r.Left, 200) || !almostEqual(r.Top, 500) {
		t.Errorf("unexpected origin: %+v", r)
	}
	if !almostEqual(r.Width, 400) || !almostEqual(r.Height, 250) {
		t.Errorf("unexpected size: %+v", r)
	}
}

func TestHighlightRect_AppliesClearance(t *testing.T) {
	box := BoundingBox{XMin: 0.25, YMin: 0.5, XMax: 0.75, YMax: 0.75}
	r := box.HighlightRect(800, 1000)

	if !almostEqual(r.Left, 192) || !almostEqual(r.Top, 492) {
		t.Errorf("expected 8px clearance on origin, got %+v", r)
	}
	if !almostEqual(r.Width, 416) || !almostEqual(r.Height, 266) {
		t.Errorf("expected 8px clearance on size, got %+v", r)
	}
}

func TestHighlightRect_ClampsToImageBounds(t *testing.T) {
	box := BoundingBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
	r := box.HighlightRect(800, 1000)

	if !almostEqual(r.Left, 0) || !almostEqual(r.Top, 0) {
		t.Errorf("expected clamped origin, got %+v", r)
	}
	if !almostEqual(r.Width, 800) || !almostEqual(r.Height, 1000) {
		t.Errorf("expected clamped size, got %+v", r)
	}
}

func TestNormalize_UsesRenderedDimensions(t *testing.T) {
	r := Rect{Left: 80, Top: 100, Width: 160, Height: 300}
	box := Normalize(r, 800, 1000)

	want := BoundingBox{XMin: 0.1, YMin: 0.1, XMax: 0.3, YMax: 0.4}
	if !almostEqual(box.XMin, want.XMin) || !almostEqual(box.YMin, want.YMin) ||
		!almostEqual(box.XMax, want.XMax) || !almostEqual(box.YMax, want.YMax) {
		t.Errorf("got %+v, want %+v", box, want)
	}
	if !box.IsValid() {
		t.Error("normalized box should satisfy ordering invariant")
	}
}

func TestRectFromCorners_AnyOrder(t *testing.T) {
	a := RectFromCorners(10, 20, 50, 80)
	b := RectFromCorners(50, 80, 10, 20)

	if a != b {
		t.Errorf("corner order should not matter: %+v != %+v", a, b)
	}
	if !almostEqual(a.Left, 10) || !almostEqual(a.Top, 20) ||
		!almostEqual(a.Width, 40) || !almostEqual(a.Height, 60) {
		t.Errorf("unexpected rect: %+v", a)
	}
}
