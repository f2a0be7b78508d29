package docview

import (
	"testing"
	"time"

	"github.com/icdreview/icdreview/internal/domain/documents"
	"github.com/icdreview/icdreview/internal/domain/viewer"
	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

func testDocs() []documents.Document {
	return []documents.Document{
		{ID: "visit-note", Name: "Visit Note", Type: "Clinical Notes", Pages: 5},
		{ID: "485", Name: "485 Form", Type: "Physician Order", Pages: 3},
	}
}

func newTestController() (*Controller, *viewer.Engine, *clock.Mock) {
	mock := clock.NewMock()
	var c *Controller
	engine := viewer.NewEngine(mock, viewer.WithPageChangeListener(func(p int) {
		if c != nil {
			c.HandlePageChangeFromViewer(p)
		}
	}))
	c = NewController(mock, engine, testDocs())
	return c, engine, mock
}

func evidenceOn(doc string, page int) viewer.Highlight {
	return viewer.Highlight{
		ID:       "ev-1",
		Box:      geometry.BoundingBox{XMin: 0.2, YMin: 0.2, XMax: 0.4, YMax: 0.3},
		Document: doc,
		Page:     page,
	}
}

// =========== Document switching ===========

func TestSwitchDocumentTransitions(t *testing.T) {
	c, _, mock := newTestController()

	c.SwitchDocument("485 Form", 0)

	if !c.Transitioning() {
		t.Fatal("expected transitioning during the switch")
	}
	if c.SelectedDocument() != "485 Form" || c.CurrentPage() != 1 {
		t.Fatalf("unexpected state %s page %d", c.SelectedDocument(), c.CurrentPage())
	}

	mock.Advance(transitionDelay)
	if c.Transitioning() {
		t.Fatal("expected transition cleared after the delay")
	}
}

func TestSwitchToSameDocumentIsNoop(t *testing.T) {
	c, _, mock := newTestController()

	c.SwitchDocument("Visit Note", 0)

	if c.Transitioning() {
		t.Fatal("same-document switch must not transition")
	}
	if mock.PendingCount() != 0 {
		t.Fatal("same-document switch must not schedule timers")
	}
}

func TestSwitchToUnknownDocumentIgnored(t *testing.T) {
	c, _, _ := newTestController()
	c.SwitchDocument("Nope", 0)
	if c.SelectedDocument() != "Visit Note" {
		t.Fatalf("unexpected document %s", c.SelectedDocument())
	}
}

func TestSwitchClampsRequestedPage(t *testing.T) {
	c, _, mock := newTestController()

	c.SwitchDocument("485 Form", 99)
	mock.Advance(2 * time.Second)

	if got := c.CurrentPage(); got != 3 {
		t.Fatalf("expected clamp to last page, got %d", got)
	}
}

// =========== Page navigation ===========

func TestGoToPage(t *testing.T) {
	c, engine, mock := newTestController()

	c.GoToPage(3)
	mock.Advance(2 * time.Second)

	if got := c.CurrentPage(); got != 3 {
		t.Fatalf("expected page 3, got %d", got)
	}
	if engine.CurrentPage() != 3 {
		t.Fatalf("engine disagrees: %d", engine.CurrentPage())
	}
}

func TestGoToPageBounds(t *testing.T) {
	c, _, mock := newTestController()

	c.GoToPage(0)
	c.GoToPage(6)

	if mock.PendingCount() != 0 {
		t.Fatal("out-of-range pages must not navigate")
	}
}

func TestGoToCurrentTargetIsNoop(t *testing.T) {
	c, _, mock := newTestController()
	c.GoToPage(3)
	mock.Advance(2 * time.Second)

	c.GoToPage(3)
	if mock.PendingCount() != 0 {
		t.Fatal("navigating to the current target must be a no-op")
	}
}

func TestPassivePageChangeNeverScrolls(t *testing.T) {
	c, engine, mock := newTestController()

	c.HandlePageChangeFromViewer(4)

	if c.CurrentPage() != 4 {
		t.Fatalf("expected page 4, got %d", c.CurrentPage())
	}
	if mock.PendingCount() != 0 {
		t.Fatal("passive updates must not schedule scrolls")
	}
	if engine.ScrollTop() != 0 {
		t.Fatalf("engine moved: %v", engine.ScrollTop())
	}
}

// =========== Evidence highlight lifecycle ===========

func TestEvidenceOnCurrentPageHighlightsInPlace(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("Visit Note", 1))

	if c.SelectedDocument() != "Visit Note" || c.CurrentPage() != 1 {
		t.Fatal("same-place evidence must not navigate")
	}
	if c.Snapshot().Evidence != nil {
		t.Fatal("highlight must wait for the dwell delay")
	}

	mock.Advance(highlightDwell)
	snap := c.Snapshot()
	if snap.Evidence == nil || snap.Evidence.ID != "ev-1" {
		t.Fatalf("expected visible highlight, got %+v", snap.Evidence)
	}
}

func TestEvidenceHighlightAutoClears(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("Visit Note", 1))
	mock.Advance(highlightDwell)
	mock.Advance(highlightDuration)

	if c.Snapshot().Evidence != nil {
		t.Fatal("expected highlight auto-cleared")
	}
	if mock.PendingCount() != 0 {
		t.Fatalf("expected no leftover timers, %d pending", mock.PendingCount())
	}
}

func TestEvidenceOnOtherPageNavigatesFirst(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("Visit Note", 3))

	if c.Snapshot().TargetPage != 3 {
		t.Fatalf("expected navigation to page 3, got %d", c.Snapshot().TargetPage)
	}
	mock.Advance(2 * time.Second)
	snap := c.Snapshot()
	if snap.CurrentPage != 3 {
		t.Fatalf("expected page 3, got %d", snap.CurrentPage)
	}
	if snap.Evidence == nil {
		t.Fatal("expected highlight after navigation settles")
	}
}

func TestEvidenceOnOtherDocumentSwitches(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("485 Form", 2))

	if c.SelectedDocument() != "485 Form" {
		t.Fatalf("expected document switch, got %s", c.SelectedDocument())
	}
	mock.Advance(2 * time.Second)
	snap := c.Snapshot()
	if snap.CurrentPage != 2 {
		t.Fatalf("expected page 2, got %d", snap.CurrentPage)
	}
	if snap.Evidence == nil || snap.Evidence.Document != "485 Form" {
		t.Fatalf("expected highlight on the new document, got %+v", snap.Evidence)
	}
}

func TestNewEvidenceCancelsPriorLifecycle(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("Visit Note", 1))
	mock.Advance(100 * time.Millisecond)

	second := evidenceOn("Visit Note", 1)
	second.ID = "ev-2"
	c.NavigateToEvidence(second)
	mock.Advance(highlightDwell)

	snap := c.Snapshot()
	if snap.Evidence == nil || snap.Evidence.ID != "ev-2" {
		t.Fatalf("expected the second highlight only, got %+v", snap.Evidence)
	}
}

func TestNavigationClearsLiveHighlight(t *testing.T) {
	c, _, mock := newTestController()

	c.NavigateToEvidence(evidenceOn("Visit Note", 1))
	mock.Advance(highlightDwell)
	if c.Snapshot().Evidence == nil {
		t.Fatal("expected visible highlight")
	}

	c.GoToPage(4)
	if c.Snapshot().Evidence != nil {
		t.Fatal("a highlight never survives a navigation")
	}
}

// =========== Page input ===========

func TestPageInputCommit(t *testing.T) {
	c, _, mock := newTestController()

	c.StartEditingPage()
	if !c.Snapshot().EditingPage {
		t.Fatal("expected edit mode")
	}
	c.SetPageInput(" 4 ")
	c.CommitPageInput()
	mock.Advance(2 * time.Second)

	if c.Snapshot().EditingPage {
		t.Fatal("expected edit mode exited")
	}
	if got := c.CurrentPage(); got != 4 {
		t.Fatalf("expected page 4, got %d", got)
	}
}

func TestPageInputParseFailureSilentlyExits(t *testing.T) {
	c, _, mock := newTestController()

	c.StartEditingPage()
	c.SetPageInput("abc")
	c.CommitPageInput()

	if c.Snapshot().EditingPage {
		t.Fatal("expected edit mode exited")
	}
	if mock.PendingCount() != 0 {
		t.Fatal("parse failure must not navigate")
	}
	if got := c.CurrentPage(); got != 1 {
		t.Fatalf("expected page unchanged, got %d", got)
	}
}

func TestPageInputEscapeCancels(t *testing.T) {
	c, _, mock := newTestController()

	c.StartEditingPage()
	c.SetPageInput("4")
	c.CancelPageInput()

	if c.Snapshot().EditingPage {
		t.Fatal("expected edit mode exited")
	}
	if mock.PendingCount() != 0 {
		t.Fatal("cancel must not navigate")
	}
}

func TestEditingSuppressesViewerKeys(t *testing.T) {
	c, engine, mock := newTestController()

	c.StartEditingPage()
	engine.KeyDown(viewer.KeyArrowDown, viewer.Modifiers{})
	mock.Advance(time.Second)
	if engine.ScrollTop() != 0 {
		t.Fatal("keyboard must be suppressed while editing the page field")
	}

	c.CancelPageInput()
	engine.KeyDown(viewer.KeyArrowDown, viewer.Modifiers{})
	engine.KeyUp(viewer.KeyArrowDown)
	mock.Advance(time.Second)
	if engine.ScrollTop() == 0 {
		t.Fatal("keyboard must resume after editing ends")
	}
}
