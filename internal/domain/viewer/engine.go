package viewer

import (
	"math"
	"sync"
	"time"

	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

// Scroll animation timing. Every animated scroll is an ease-out-cubic
// interpolation driven by fixed-rate ticks; a new request cancels the
// in-flight one.
const (
	animTick = 16 * time.Millisecond

	wheelScrollDuration = 200 * time.Millisecond
	nudgeDuration       = 300 * time.Millisecond
	viewportDuration    = 500 * time.Millisecond
	jumpDuration        = 800 * time.Millisecond

	// scrollReportDelay is when a programmatic page jump reports its target
	// as the current page, slightly after the animation lands.
	scrollReportDelay = 850 * time.Millisecond

	// snapDistance short-circuits the animation for tiny moves.
	snapDistance = 5.0
)

// Highlight is a spotlighted region bound to one (document, page).
type Highlight struct {
	ID       string               `json:"id"`
	Box      geometry.BoundingBox `json:"box"`
	Document string               `json:"document"`
	Page     int                  `json:"page"`
}

// Overlays are the pixel rectangles to draw on one page.
type Overlays struct {
	Evidence  *geometry.Rect `json:"evidence,omitempty"`
	Search    *geometry.Rect `json:"search,omitempty"`
	Selection *geometry.Rect `json:"selection,omitempty"`
}

// Engine drives the scroll position over a page Layout. All timing runs on
// the injected clock; listeners are invoked without the engine lock held.
type Engine struct {
	clk clock.Clock

	onPageChange   func(page int)
	onAreaSelected func(area geometry.SelectedArea)
	onCancelAdd    func()

	mu          sync.Mutex
	layout      Layout
	document    string
	scrollTop   float64
	currentPage int

	transitioning bool
	editing       bool
	modalOpen     bool

	anim          clock.Stopper
	animGen       int
	pendingReport clock.Stopper

	pressed    map[string]bool
	holdTimer  clock.Stopper
	holdRepeat clock.Stopper

	addMode   bool
	dragging  bool
	dragDoc   string
	dragPage  int
	dragStart [2]float64
	dragCur   [2]float64
	hasCursor bool

	evidence *Highlight
	search   *Highlight
}

// Option configures an Engine.
type Option func(*Engine)

func WithPageChangeListener(fn func(page int)) Option {
	return func(e *Engine) { e.onPageChange = fn }
}

func WithAreaListener(fn func(area geometry.SelectedArea)) Option {
	return func(e *Engine) { e.onAreaSelected = fn }
}

func WithCancelAddListener(fn func()) Option {
	return func(e *Engine) { e.onCancelAdd = fn }
}

func NewEngine(clk clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		clk:         clk,
		currentPage: 1,
		pressed:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetDocument installs a new page layout, resetting scroll and page state.
// Called on document switch.
func (e *Engine) SetDocument(name string, layout Layout) {
	e.mu.Lock()
	e.stopAnimationLocked()
	e.stopKeyTimersLocked()
	if e.pendingReport != nil {
		e.pendingReport.Stop()
		e.pendingReport = nil
	}
	e.document = name
	e.layout = layout
	e.scrollTop = 0
	e.currentPage = 1
	e.dragging = false
	e.hasCursor = false
	e.mu.Unlock()
}

// SetTransitioning flags a cross-document switch in progress: overlays are
// suppressed and input is ignored until cleared.
func (e *Engine) SetTransitioning(v bool) {
	e.mu.Lock()
	e.transitioning = v
	e.mu.Unlock()
}

// SetEditing suppresses keyboard navigation while a text input has focus.
func (e *Engine) SetEditing(v bool) {
	e.mu.Lock()
	e.editing = v
	e.mu.Unlock()
}

// SetModalOpen suppresses keyboard navigation while a dialog is open.
func (e *Engine) SetModalOpen(v bool) {
	e.mu.Lock()
	e.modalOpen = v
	e.mu.Unlock()
}

// ScrollTop reports the current scroll offset.
func (e *Engine) ScrollTop() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrollTop
}

// CurrentPage reports the page visibility tracking considers current.
func (e *Engine) CurrentPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPage
}

func easeOutCubic(t float64) float64 {
	inv := 1 - t
	return 1 - inv*inv*inv
}

func (e *Engine) stopAnimationLocked() {
	if e.anim != nil {
		e.anim.Stop()
		e.anim = nil
	}
	e.animGen++
}

func (e *Engine) stopKeyTimersLocked() {
	if e.holdTimer != nil {
		e.holdTimer.Stop()
		e.holdTimer = nil
	}
	if e.holdRepeat != nil {
		e.holdRepeat.Stop()
		e.holdRepeat = nil
	}
	e.pressed = make(map[string]bool)
}

// setScrollTopLocked moves the scroll position and returns the new current
// page if visibility tracking changed it, or 0.
func (e *Engine) setScrollTopLocked(top float64) int {
	e.scrollTop = e.layout.Clamp(top)
	page := e.layout.MostVisiblePage(e.scrollTop)
	if page != 0 && page != e.currentPage {
		e.currentPage = page
		return page
	}
	return 0
}

func (e *Engine) notifyPage(page int) {
	if page != 0 && e.onPageChange != nil {
		e.onPageChange(page)
	}
}

// ScrollBy applies a direct, unanimated scroll delta.
func (e *Engine) ScrollBy(delta float64) {
	e.mu.Lock()
	e.stopAnimationLocked()
	changed := e.setScrollTopLocked(e.scrollTop + delta)
	e.mu.Unlock()
	e.notifyPage(changed)
}

// AnimateTo starts an eased scroll to target over the given duration,
// cancelling any in-flight animation. Distances under the snap threshold
// apply immediately.
func (e *Engine) AnimateTo(target float64, d time.Duration) {
	e.mu.Lock()
	e.stopAnimationLocked()
	target = e.layout.Clamp(target)
	start := e.scrollTop
	if math.Abs(target-start) < snapDistance || d <= 0 {
		changed := e.setScrollTopLocked(target)
		e.mu.Unlock()
		e.notifyPage(changed)
		return
	}

	gen := e.animGen
	startAt := e.clk.Now()
	e.anim = e.clk.Interval(animTick, func() {
		e.mu.Lock()
		if gen != e.animGen {
			e.mu.Unlock()
			return
		}
		t := float64(e.clk.Now().Sub(startAt)) / float64(d)
		var changed int
		if t >= 1 {
			changed = e.setScrollTopLocked(target)
			e.stopAnimationLocked()
		} else {
			changed = e.setScrollTopLocked(start + (target-start)*easeOutCubic(t))
		}
		e.mu.Unlock()
		e.notifyPage(changed)
	})
	e.mu.Unlock()
}

// ScrollToPage centers page n in the viewport with a long eased scroll and
// reports n as the current page shortly after the animation lands. A new
// jump cancels the previous report.
func (e *Engine) ScrollToPage(n int) {
	e.mu.Lock()
	if n < 1 || n > e.layout.NumPages() {
		e.mu.Unlock()
		return
	}
	if e.pendingReport != nil {
		e.pendingReport.Stop()
		e.pendingReport = nil
	}
	target := e.layout.PageCenterScroll(n)
	e.pendingReport = e.clk.AfterFunc(scrollReportDelay, func() {
		e.mu.Lock()
		e.pendingReport = nil
		changed := 0
		if e.currentPage != n {
			e.currentPage = n
			changed = n
		}
		e.mu.Unlock()
		e.notifyPage(changed)
	})
	e.mu.Unlock()

	e.AnimateTo(target, jumpDuration)
}

// SetEvidenceHighlight installs or clears the evidence highlight slot.
func (e *Engine) SetEvidenceHighlight(h *Highlight) {
	e.mu.Lock()
	e.evidence = h
	e.mu.Unlock()
}

// SetSearchHighlight installs or clears the search highlight slot.
func (e *Engine) SetSearchHighlight(h *Highlight) {
	e.mu.Lock()
	e.search = h
	e.mu.Unlock()
}

// PageOverlays computes the rectangles to draw on page n at the given
// rendered image size: padded evidence box, tight search box, and the live
// drag rectangle. Everything is suppressed mid-transition.
func (e *Engine) PageOverlays(n int, imgWidth, imgHeight float64) Overlays {
	e.mu.Lock()
	defer e.mu.Unlock()

	var o Overlays
	if e.transitioning {
		return o
	}
	if e.evidence != nil && e.evidence.Document == e.document && e.evidence.Page == n {
		r := e.evidence.Box.HighlightRect(imgWidth, imgHeight)
		o.Evidence = &r
	}
	if e.search != nil && e.search.Document == e.document && e.search.Page == n {
		r := e.search.Box.Scale(imgWidth, imgHeight)
		o.Search = &r
	}
	if e.dragging && e.dragPage == n {
		r := geometry.RectFromCorners(e.dragStart[0], e.dragStart[1], e.dragCur[0], e.dragCur[1])
		o.Selection = &r
	}
	return o
}
