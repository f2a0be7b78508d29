// Package docview is the document viewer controller: it owns which document
// and page are displayed, the page-input editing sub-state, and the
// evidence/search highlight lifecycles, driving the viewer engine for all
// programmatic navigation.
package docview

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/icdreview/icdreview/internal/domain/documents"
	"github.com/icdreview/icdreview/internal/domain/viewer"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

const (
	// transitionDelay dims the view while a document switch mounts the new
	// page stack.
	transitionDelay = 200 * time.Millisecond

	// highlightDwell delays the highlight until the scroll animation has
	// settled so it never flashes mid-flight.
	highlightDwell = 500 * time.Millisecond

	// highlightDuration is how long an evidence highlight stays visible
	// before auto-clearing.
	highlightDuration = 30 * time.Second

	defaultViewportWidth  = 800.0
	defaultViewportHeight = 700.0
	pageGap               = 16.0
)

// Controller drives one viewer engine over a fixed document set.
type Controller struct {
	clk    clock.Clock
	engine *viewer.Engine

	mu       sync.Mutex
	docs     map[string]documents.Document
	order    []string
	selected string
	current  int
	target   int
	zoom     int // fixed at 100, retained for interface stability

	viewportWidth  float64
	viewportHeight float64

	transitioning   bool
	transitionTimer clock.Stopper

	editingPage bool
	pageInput   string

	evidence     *viewer.Highlight
	search       *viewer.Highlight
	highlightGen int
	dwellTimer   clock.Stopper
	expireTimer  clock.Stopper
}

func NewController(clk clock.Clock, engine *viewer.Engine, docs []documents.Document) *Controller {
	c := &Controller{
		clk:            clk,
		engine:         engine,
		docs:           make(map[string]documents.Document, len(docs)),
		current:        1,
		target:         1,
		zoom:           100,
		viewportWidth:  defaultViewportWidth,
		viewportHeight: defaultViewportHeight,
	}
	for _, d := range docs {
		c.docs[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	if len(c.order) > 0 {
		c.selected = c.order[0]
		engine.SetDocument(c.selected, c.layoutFor(c.selected))
	}
	return c
}

// SetViewport records the on-screen viewport size and rebuilds the current
// layout against it.
func (c *Controller) SetViewport(width, height float64) {
	c.mu.Lock()
	c.viewportWidth = width
	c.viewportHeight = height
	selected := c.selected
	c.mu.Unlock()
	if selected != "" {
		c.engine.SetDocument(selected, c.layoutFor(selected))
	}
}

func (c *Controller) layoutFor(name string) viewer.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := c.docs[name]
	return viewer.UniformLayout(doc.Pages, documents.DefaultPageHeight, pageGap, c.viewportWidth, c.viewportHeight)
}

func (c *Controller) totalPages(name string) int {
	return c.docs[name].Pages
}

// SelectedDocument reports the displayed document name.
func (c *Controller) SelectedDocument() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// CurrentPage reports the page last seen as visible.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Transitioning reports whether a document switch is settling.
func (c *Controller) Transitioning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitioning
}

// SwitchDocument displays another document at the given page (0 means page
// 1). Same-document switches are no-ops. The transitioning flag holds for
// a short delay so overlays stay suppressed while the new pages mount.
func (c *Controller) SwitchDocument(name string, page int) {
	c.mu.Lock()
	if name == c.selected {
		c.mu.Unlock()
		return
	}
	if _, ok := c.docs[name]; !ok {
		c.mu.Unlock()
		return
	}
	if page < 1 {
		page = 1
	}
	if total := c.totalPages(name); page > total {
		page = total
	}

	c.clearHighlightLocked()
	c.selected = name
	c.current = page
	c.target = page
	c.transitioning = true
	if c.transitionTimer != nil {
		c.transitionTimer.Stop()
	}
	c.transitionTimer = c.clk.AfterFunc(transitionDelay, func() {
		c.mu.Lock()
		c.transitioning = false
		c.transitionTimer = nil
		c.mu.Unlock()
		c.engine.SetTransitioning(false)
	})
	c.mu.Unlock()

	c.engine.SetTransitioning(true)
	c.engine.SetDocument(name, c.layoutFor(name))
	if page > 1 {
		c.engine.ScrollToPage(page)
	}
}

// GoToPage navigates within the current document. Out-of-range and
// already-targeted pages are no-ops. A live highlight never survives a
// navigation.
func (c *Controller) GoToPage(n int) {
	c.mu.Lock()
	if n < 1 || n > c.totalPages(c.selected) || n == c.target {
		c.mu.Unlock()
		return
	}
	c.clearHighlightLocked()
	c.target = n
	c.mu.Unlock()

	c.engine.ScrollToPage(n)
}

// HandlePageChangeFromViewer records the page the engine's visibility
// tracking reported. Passive: it never triggers a scroll of its own.
func (c *Controller) HandlePageChangeFromViewer(n int) {
	c.mu.Lock()
	c.current = n
	c.target = n
	c.mu.Unlock()
}

// clearHighlightLocked cancels any pending highlight lifecycle and removes
// a visible one.
func (c *Controller) clearHighlightLocked() {
	c.highlightGen++
	if c.dwellTimer != nil {
		c.dwellTimer.Stop()
		c.dwellTimer = nil
	}
	if c.expireTimer != nil {
		c.expireTimer.Stop()
		c.expireTimer = nil
	}
	if c.evidence != nil {
		c.evidence = nil
		c.engine.SetEvidenceHighlight(nil)
	}
}

// ClearHighlight removes the evidence highlight and its pending timers.
func (c *Controller) ClearHighlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearHighlightLocked()
}

// scheduleHighlightLocked arms the dwell-then-expire lifecycle for ev.
func (c *Controller) scheduleHighlightLocked(ev viewer.Highlight) {
	gen := c.highlightGen
	c.dwellTimer = c.clk.AfterFunc(highlightDwell, func() {
		c.mu.Lock()
		if gen != c.highlightGen {
			c.mu.Unlock()
			return
		}
		c.dwellTimer = nil
		h := ev
		c.evidence = &h
		c.expireTimer = c.clk.AfterFunc(highlightDuration, func() {
			c.mu.Lock()
			if gen != c.highlightGen {
				c.mu.Unlock()
				return
			}
			c.expireTimer = nil
			c.evidence = nil
			c.mu.Unlock()
			c.engine.SetEvidenceHighlight(nil)
		})
		c.mu.Unlock()
		c.engine.SetEvidenceHighlight(&h)
	})
}

// NavigateToEvidence brings a piece of supporting evidence into view and
// spotlights it. Evidence on the displayed page highlights in place;
// otherwise the controller switches document or page first. Starting a new
// lifecycle always cancels the previous one.
func (c *Controller) NavigateToEvidence(ev viewer.Highlight) {
	c.mu.Lock()
	samePlace := ev.Document == c.selected && ev.Page == c.current && !c.transitioning
	c.clearHighlightLocked()
	if samePlace {
		c.scheduleHighlightLocked(ev)
		c.mu.Unlock()
		return
	}
	sameDoc := ev.Document == c.selected
	c.mu.Unlock()

	if sameDoc {
		c.GoToPage(ev.Page)
	} else {
		c.SwitchDocument(ev.Document, ev.Page)
	}

	c.mu.Lock()
	// Navigation cleared the lifecycle again; re-arm it for this evidence.
	c.scheduleHighlightLocked(ev)
	c.mu.Unlock()
}

// SetSearchHighlight installs the current PDF search match, or clears it
// with nil.
func (c *Controller) SetSearchHighlight(h *viewer.Highlight) {
	c.mu.Lock()
	c.search = h
	c.mu.Unlock()
	c.engine.SetSearchHighlight(h)
}

// =========== Page input editing ===========

// StartEditingPage enters click-to-edit mode on the page indicator.
func (c *Controller) StartEditingPage() {
	c.mu.Lock()
	c.editingPage = true
	c.pageInput = strconv.Itoa(c.current)
	c.mu.Unlock()
	c.engine.SetEditing(true)
}

// SetPageInput records the text being typed into the page field.
func (c *Controller) SetPageInput(text string) {
	c.mu.Lock()
	if c.editingPage {
		c.pageInput = text
	}
	c.mu.Unlock()
}

// CommitPageInput parses and navigates; a parse failure exits edit mode
// silently without navigating. Used for both Enter and blur.
func (c *Controller) CommitPageInput() {
	c.mu.Lock()
	if !c.editingPage {
		c.mu.Unlock()
		return
	}
	text := strings.TrimSpace(c.pageInput)
	c.editingPage = false
	c.pageInput = ""
	c.mu.Unlock()
	c.engine.SetEditing(false)

	n, err := strconv.Atoi(text)
	if err != nil {
		return
	}
	c.GoToPage(n)
}

// CancelPageInput exits edit mode without committing.
func (c *Controller) CancelPageInput() {
	c.mu.Lock()
	c.editingPage = false
	c.pageInput = ""
	c.mu.Unlock()
	c.engine.SetEditing(false)
}

// Snapshot is the controller state exposed to handlers.
type Snapshot struct {
	SelectedDocument string            `json:"selected_document"`
	CurrentPage      int               `json:"current_page"`
	TargetPage       int               `json:"target_page"`
	TotalPages       int               `json:"total_pages"`
	Zoom             int               `json:"zoom"`
	Transitioning    bool              `json:"transitioning"`
	EditingPage      bool              `json:"editing_page"`
	PageInput        string            `json:"page_input,omitempty"`
	Evidence         *viewer.Highlight `json:"evidence_highlight,omitempty"`
	Search           *viewer.Highlight `json:"search_highlight,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		SelectedDocument: c.selected,
		CurrentPage:      c.current,
		TargetPage:       c.target,
		TotalPages:       c.totalPages(c.selected),
		Zoom:             c.zoom,
		Transitioning:    c.transitioning,
		EditingPage:      c.editingPage,
		PageInput:        c.pageInput,
	}
	if c.evidence != nil {
		h := *c.evidence
		s.Evidence = &h
	}
	if c.search != nil {
		h := *c.search
		s.Search = &h
	}
	return s
}
