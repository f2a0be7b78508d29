// Package viewer models the scroll behavior of the stacked page view: the
// pixel-space layout of the page column, eased scroll animation, page
// visibility tracking, keyboard and wheel navigation, and area selection.
// It renders nothing; it owns the geometry and timing the view follows.
package viewer

// Layout is the vertical page stack: per-page rendered heights separated
// by a fixed gap, viewed through a viewport of fixed size.
type Layout struct {
	PageHeights    []float64
	Gap            float64
	ViewportWidth  float64
	ViewportHeight float64
}

// UniformLayout builds a layout with n identical pages.
func UniformLayout(n int, pageHeight, gap, viewportWidth, viewportHeight float64) Layout {
	heights := make([]float64, n)
	for i := range heights {
		heights[i] = pageHeight
	}
	return Layout{
		PageHeights:    heights,
		Gap:            gap,
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
	}
}

func (l Layout) NumPages() int { return len(l.PageHeights) }

// PageOffset is the y position of the top of page n (1-based).
func (l Layout) PageOffset(page int) float64 {
	off := 0.0
	for i := 0; i < page-1 && i < len(l.PageHeights); i++ {
		off += l.PageHeights[i] + l.Gap
	}
	return off
}

// ContentHeight is the total stacked height including inter-page gaps.
func (l Layout) ContentHeight() float64 {
	if len(l.PageHeights) == 0 {
		return 0
	}
	h := 0.0
	for _, ph := range l.PageHeights {
		h += ph
	}
	return h + l.Gap*float64(len(l.PageHeights)-1)
}

// MaxScroll is the largest valid scroll offset.
func (l Layout) MaxScroll() float64 {
	m := l.ContentHeight() - l.ViewportHeight
	if m < 0 {
		return 0
	}
	return m
}

// Clamp bounds a scroll offset to the valid range.
func (l Layout) Clamp(top float64) float64 {
	if top < 0 {
		return 0
	}
	if m := l.MaxScroll(); top > m {
		return m
	}
	return top
}

// PageCenterScroll is the scroll offset that centers page n in the
// viewport.
func (l Layout) PageCenterScroll(page int) float64 {
	if page < 1 || page > len(l.PageHeights) {
		return l.Clamp(0)
	}
	off := l.PageOffset(page)
	return l.Clamp(off + l.PageHeights[page-1]/2 - l.ViewportHeight/2)
}

// visibilityBand is the middle portion of the viewport used for current
// page detection.
const (
	bandFraction    = 0.6 // middle 60% of the viewport
	visibleFraction = 0.3 // a page needs 30% of itself inside the band
)

// MostVisiblePage picks the page considered "current" at a scroll offset:
// the page with the largest overlap with the center band, provided at
// least 30% of the page is inside it. Returns 0 when no page qualifies.
func (l Layout) MostVisiblePage(scrollTop float64) int {
	margin := l.ViewportHeight * (1 - bandFraction) / 2
	bandTop := scrollTop + margin
	bandBottom := scrollTop + l.ViewportHeight - margin

	best := 0
	bestOverlap := 0.0
	for i, h := range l.PageHeights {
		top := l.PageOffset(i + 1)
		bottom := top + h
		overlap := min64(bottom, bandBottom) - max64(top, bandTop)
		if overlap < h*visibleFraction {
			continue
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = i + 1
		}
	}
	return best
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
