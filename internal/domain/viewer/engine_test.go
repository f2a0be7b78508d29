package viewer

import (
	"testing"
	"time"

	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

func newTestViewer(opts ...Option) (*Engine, *clock.Mock) {
	mock := clock.NewMock()
	e := NewEngine(mock, opts...)
	e.SetDocument("Visit Note", testLayout())
	return e, mock
}

// settle runs an animation to completion.
func settle(mock *clock.Mock, d time.Duration) {
	mock.Advance(d + 2*animTick)
}

// =========== Eased scrolling ===========

func TestAnimateToReachesTarget(t *testing.T) {
	e, mock := newTestViewer()

	e.AnimateTo(1000, nudgeDuration)
	settle(mock, nudgeDuration)

	if got := e.ScrollTop(); got != 1000 {
		t.Fatalf("expected scroll 1000, got %v", got)
	}
	if mock.PendingCount() != 0 {
		t.Fatalf("expected animation timer stopped, %d pending", mock.PendingCount())
	}
}

func TestAnimationEasesOut(t *testing.T) {
	e, mock := newTestViewer()

	e.AnimateTo(1000, nudgeDuration)
	mock.Advance(nudgeDuration / 2)
	mid := e.ScrollTop()

	// Ease-out-cubic covers most of the distance in the first half.
	if mid <= 500 || mid >= 1000 {
		t.Fatalf("expected past-midpoint progress at half time, got %v", mid)
	}
	settle(mock, nudgeDuration)
	if got := e.ScrollTop(); got != 1000 {
		t.Fatalf("expected scroll 1000, got %v", got)
	}
}

func TestNewAnimationSupersedesOld(t *testing.T) {
	e, mock := newTestViewer()

	e.AnimateTo(4000, jumpDuration)
	mock.Advance(100 * time.Millisecond)
	e.AnimateTo(200, nudgeDuration)
	settle(mock, nudgeDuration)

	if got := e.ScrollTop(); got != 200 {
		t.Fatalf("expected the second request to win, got %v", got)
	}
	settle(mock, jumpDuration)
	if got := e.ScrollTop(); got != 200 {
		t.Fatalf("the first animation leaked through: %v", got)
	}
}

func TestTinyDistanceSnaps(t *testing.T) {
	e, mock := newTestViewer()

	e.AnimateTo(3, nudgeDuration)

	if got := e.ScrollTop(); got != 3 {
		t.Fatalf("expected immediate snap, got %v", got)
	}
	if mock.PendingCount() != 0 {
		t.Fatal("snap must not schedule an animation")
	}
}

func TestAnimationClampsTarget(t *testing.T) {
	e, mock := newTestViewer()

	e.AnimateTo(99999, nudgeDuration)
	settle(mock, nudgeDuration)

	if got := e.ScrollTop(); got != 4364 {
		t.Fatalf("expected clamp to max scroll, got %v", got)
	}
}

// =========== Visibility tracking ===========

func TestScrollNotifiesOnPageChangeOnly(t *testing.T) {
	var changes []int
	e, _ := newTestViewer(WithPageChangeListener(func(p int) { changes = append(changes, p) }))

	e.ScrollBy(10)
	e.ScrollBy(10)
	if len(changes) != 0 {
		t.Fatalf("small scrolls on page 1 must not notify, got %v", changes)
	}

	e.ScrollBy(1200)
	if len(changes) != 1 || changes[0] != 2 {
		t.Fatalf("expected a single change to page 2, got %v", changes)
	}
}

func TestScrollBetweenPagesKeepsCurrent(t *testing.T) {
	e, _ := newTestViewer()
	// Land in the gap region where no page fills the band threshold.
	e.ScrollBy(660)
	if got := e.CurrentPage(); got != 1 && got != 2 {
		t.Fatalf("expected a stable nearby page, got %d", got)
	}
}

// =========== Page jump ===========

func TestScrollToPageCentersAndReports(t *testing.T) {
	var changes []int
	e, mock := newTestViewer(WithPageChangeListener(func(p int) { changes = append(changes, p) }))

	e.ScrollToPage(3)
	settle(mock, scrollReportDelay)

	if got := e.ScrollTop(); got != 2182 {
		t.Fatalf("expected centered scroll 2182, got %v", got)
	}
	if e.CurrentPage() != 3 {
		t.Fatalf("expected current page 3, got %d", e.CurrentPage())
	}
	if len(changes) == 0 || changes[len(changes)-1] != 3 {
		t.Fatalf("expected final notification for page 3, got %v", changes)
	}
}

func TestScrollToPageOutOfRange(t *testing.T) {
	e, mock := newTestViewer()
	e.ScrollToPage(0)
	e.ScrollToPage(6)
	if mock.PendingCount() != 0 {
		t.Fatal("invalid jumps must not schedule work")
	}
	if got := e.ScrollTop(); got != 0 {
		t.Fatalf("expected no movement, got %v", got)
	}
}

func TestNewJumpCancelsPendingReport(t *testing.T) {
	var changes []int
	e, mock := newTestViewer(WithPageChangeListener(func(p int) { changes = append(changes, p) }))

	e.ScrollToPage(5)
	mock.Advance(100 * time.Millisecond)
	e.ScrollToPage(2)
	settle(mock, scrollReportDelay)

	for _, p := range changes {
		if p == 5 {
			t.Fatalf("superseded jump still reported page 5: %v", changes)
		}
	}
	if e.CurrentPage() != 2 {
		t.Fatalf("expected page 2, got %d", e.CurrentPage())
	}
}

// =========== Overlays ===========

func evidenceHighlight(page int) *Highlight {
	return &Highlight{
		ID:       "ev-1",
		Box:      geometry.BoundingBox{XMin: 0.25, YMin: 0.25, XMax: 0.5, YMax: 0.5},
		Document: "Visit Note",
		Page:     page,
	}
}

func TestPageOverlaysEvidencePadded(t *testing.T) {
	e, _ := newTestViewer()
	e.SetEvidenceHighlight(evidenceHighlight(2))

	o := e.PageOverlays(2, 800, 1000)
	if o.Evidence == nil {
		t.Fatal("expected evidence overlay")
	}
	// 0.25*800 = 200, minus the 8px clearance.
	if o.Evidence.Left != 192 || o.Evidence.Top != 242 {
		t.Fatalf("expected padded rect at (192, 242), got %+v", o.Evidence)
	}

	if o := e.PageOverlays(3, 800, 1000); o.Evidence != nil {
		t.Fatal("evidence must only render on its own page")
	}
}

func TestPageOverlaysSearchTight(t *testing.T) {
	e, _ := newTestViewer()
	e.SetSearchHighlight(&Highlight{
		ID:       "m-0",
		Box:      geometry.BoundingBox{XMin: 0.1, YMin: 0.1, XMax: 0.2, YMax: 0.2},
		Document: "Visit Note",
		Page:     1,
	})

	o := e.PageOverlays(1, 800, 1000)
	if o.Search == nil {
		t.Fatal("expected search overlay")
	}
	if o.Search.Left != 80 || o.Search.Top != 100 || o.Search.Width != 80 || o.Search.Height != 100 {
		t.Fatalf("expected tight rect, got %+v", o.Search)
	}
}

func TestOverlaysSuppressedWhileTransitioning(t *testing.T) {
	e, _ := newTestViewer()
	e.SetEvidenceHighlight(evidenceHighlight(1))
	e.SetTransitioning(true)

	o := e.PageOverlays(1, 800, 1000)
	if o.Evidence != nil || o.Search != nil || o.Selection != nil {
		t.Fatalf("expected empty overlays mid-transition, got %+v", o)
	}
}

func TestOverlayIgnoresOtherDocument(t *testing.T) {
	e, _ := newTestViewer()
	h := evidenceHighlight(1)
	h.Document = "485 Form"
	e.SetEvidenceHighlight(h)

	if o := e.PageOverlays(1, 800, 1000); o.Evidence != nil {
		t.Fatal("highlight for another document must not render")
	}
}
