package viewer

import "github.com/icdreview/icdreview/internal/geometry"

// SetAddMode toggles area-selection mode. Leaving it abandons any
// in-progress drag.
func (e *Engine) SetAddMode(v bool) {
	e.mu.Lock()
	e.addMode = v
	if !v {
		e.dragging = false
		e.hasCursor = false
	}
	e.mu.Unlock()
}

// AddMode reports whether area selection is armed.
func (e *Engine) AddMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addMode
}

// BeginSelection starts a rubber-band drag at (x, y) in page-image pixel
// coordinates. Ignored outside add mode or mid-transition.
func (e *Engine) BeginSelection(page int, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.addMode || e.transitioning {
		return
	}
	e.dragging = true
	e.dragDoc = e.document
	e.dragPage = page
	e.dragStart = [2]float64{x, y}
	e.dragCur = e.dragStart
	e.hasCursor = true
}

// UpdateSelection moves the drag's live corner.
func (e *Engine) UpdateSelection(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasCursor = true
	if !e.dragging {
		return
	}
	e.dragCur = [2]float64{x, y}
}

// MouseLeave clears the cursor decoration. The drag itself stays alive; it
// only completes with an on-image mouse-up.
func (e *Engine) MouseLeave() {
	e.mu.Lock()
	e.hasCursor = false
	e.mu.Unlock()
}

// EndSelection completes the drag: the rectangle is normalized against the
// rendered image size and emitted as a SelectedArea. Returns false when no
// drag was in progress.
func (e *Engine) EndSelection(imgWidth, imgHeight float64) bool {
	e.mu.Lock()
	if !e.dragging {
		e.mu.Unlock()
		return false
	}
	rect := geometry.RectFromCorners(e.dragStart[0], e.dragStart[1], e.dragCur[0], e.dragCur[1])
	area := geometry.SelectedArea{
		Box:      geometry.Normalize(rect, imgWidth, imgHeight),
		Document: e.dragDoc,
		Page:     e.dragPage,
		Pixels:   rect,
	}
	e.dragging = false
	e.hasCursor = false
	e.mu.Unlock()

	if e.onAreaSelected != nil {
		e.onAreaSelected(area)
	}
	return true
}
