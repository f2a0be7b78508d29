// Package geometry holds the normalized bounding-box model shared by the
// evidence highlight, search highlight, and manual-selection overlays.
// All boxes are normalized to [0,1] relative to the rendered image
// dimensions, never the natural ones.
package geometry

import (
	"math"

	"github.com/rs/zerolog/log"
)

// HighlightClearance is the outward padding, in pixels, applied to evidence
// highlight rectangles so they stand clear of tight OCR boxes.
const HighlightClearance = 8

// BoundingBox is an axis-aligned box with coordinates normalized to [0,1].
// Invariant: XMin <= XMax and YMin <= YMax.
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// FullPage is the fallback box covering the entire page. It substitutes for
// malformed wire polygons rather than failing a render.
func FullPage() BoundingBox {
	return BoundingBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
}

// FromPolygon reduces the 8-number corner wire format
// [x0,y0,x1,y1,x2,y2,x3,y3] to an axis-aligned box via min/max over the
// four x and four y coordinates. The polygon need not be axis-aligned.
// A slice of the wrong length is logged and replaced with the full-page box.
func FromPolygon(poly []float64) BoundingBox {
	if len(poly) != 8 {
		log.Warn().Int("elements", len(poly)).Msg("malformed bbox polygon, using full-page box")
		return FullPage()
	}

	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for i := 0; i < 8; i += 2 {
		xMin = math.Min(xMin, poly[i])
		xMax = math.Max(xMax, poly[i])
		yMin = math.Min(yMin, poly[i+1])
		yMax = math.Max(yMax, poly[i+1])
	}

	return BoundingBox{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
}

// ToPolygon emits the box as the 8-number corner wire format expected by
// the save schema, wrapped in a single-element outer slice.
func (b BoundingBox) ToPolygon() [][]float64 {
	return [][]float64{{
		b.XMin, b.YMin,
		b.XMax, b.YMin,
		b.XMax, b.YMax,
		b.XMin, b.YMax,
	}}
}

// IsValid reports whether the box satisfies the ordering invariant.
func (b BoundingBox) IsValid() bool {
	return b.XMin <= b.XMax && b.YMin <= b.YMax
}

// Rect is a pixel-space rectangle on a rendered page image.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scale projects the normalized box onto a rendered image of the given
// pixel dimensions. Search highlights use this tight rectangle directly.
func (b BoundingBox) Scale(imgWidth, imgHeight float64) Rect {
	return Rect{
		Left:   b.XMin * imgWidth,
		Top:    b.YMin * imgHeight,
		Width:  (b.XMax - b.XMin) * imgWidth,
		Height: (b.YMax - b.YMin) * imgHeight,
	}
}

// HighlightRect projects the box onto a rendered image and expands it by
// HighlightClearance on every side, clamped to the image bounds.
func (b BoundingBox) HighlightRect(imgWidth, imgHeight float64) Rect {
	base := b.Scale(imgWidth, imgHeight)

	left := math.Max(0, base.Left-HighlightClearance)
	top := math.Max(0, base.Top-HighlightClearance)
	right := math.Min(imgWidth, base.Left+base.Width+HighlightClearance)
	bottom := math.Min(imgHeight, base.Top+base.Height+HighlightClearance)

	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Normalize converts a pixel rectangle captured on a rendered image back to
// a normalized box. The rendered dimensions must be the ones the rectangle
// was captured against.
func Normalize(r Rect, imgWidth, imgHeight float64) BoundingBox {
	return BoundingBox{
		XMin: r.Left / imgWidth,
		YMin: r.Top / imgHeight,
		XMax: (r.Left + r.Width) / imgWidth,
		YMax: (r.Top + r.Height) / imgHeight,
	}
}

// RectFromCorners builds a pixel rectangle from two drag endpoints in any
// order.
func RectFromCorners(x1, y1, x2, y2 float64) Rect {
	return Rect{
		Left:   math.Min(x1, x2),
		Top:    math.Min(y1, y2),
		Width:  math.Abs(x2 - x1),
		Height: math.Abs(y2 - y1),
	}
}
