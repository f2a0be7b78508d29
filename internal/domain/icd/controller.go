package icd

import (
	"context"
	"sync"
	"time"

	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

// DebounceDelay is how long after the last keystroke a search dispatches.
const DebounceDelay = 300 * time.Millisecond

// Searcher runs one remote ICD lookup. The session wires the service in;
// tests inject fakes.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Code, error)
}

// Controller drives the manual-add workflow: debounced search-as-you-type,
// the selection lock that suppresses redundant queries, and the add-mode
// gate that surfaces the informational primary-conflict popup.
//
// Stale responses are handled with a generation token: every dispatched
// search snapshots the controller generation, and a response whose
// generation is older than the latest dispatch is discarded.
type Controller struct {
	clk      clock.Clock
	searcher Searcher

	mu           sync.Mutex
	term         string
	results      []Code
	searching    bool
	searchErr    string
	selected     *Code
	hasSelection bool
	generation   uint64
	pending      clock.Stopper

	adding        bool
	diagnosisType DiagnosisType
	codingReason  string
	selectedArea  *geometry.SelectedArea

	conflictPopup bool
}

func NewController(clk clock.Clock, searcher Searcher) *Controller {
	return &Controller{clk: clk, searcher: searcher, diagnosisType: DiagnosisPrimary}
}

// SetSearchTerm records a keystroke. Editing a locked selection's rendered
// text releases the lock; terms under three characters clear results and any
// pending dispatch; anything else re-arms the debounce timer.
func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.term = term

	if c.hasSelection && c.selected != nil && term != c.selected.Display() {
		c.selected = nil
		c.hasSelection = false
		c.results = nil
	}

	if len(term) < MinQueryLength {
		c.results = nil
		c.cancelPendingLocked()
		return
	}

	if c.hasSelection {
		return
	}

	c.cancelPendingLocked()
	c.generation++
	gen := c.generation
	c.pending = c.clk.AfterFunc(DebounceDelay, func() {
		c.dispatch(gen, term)
	})
}

func (c *Controller) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Controller) dispatch(gen uint64, term string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.searching = true
	c.searchErr = ""
	c.mu.Unlock()

	results, err := c.searcher.Search(context.Background(), term, 20)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.searching = false
	if err != nil {
		c.searchErr = err.Error()
		c.results = nil
		return
	}
	c.results = results
}

// Select locks in a result: the input is filled with the rendered selection,
// the dropdown clears, and further searches are suppressed until the text
// diverges.
func (c *Controller) Select(code Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	selected := code
	c.selected = &selected
	c.term = code.Display()
	c.results = nil
	c.hasSelection = true
	c.cancelPendingLocked()
	c.generation++
}

// StartAdding enters add mode for the given list. Adding a primary code
// while one is already active opens the informational conflict popup
// instead; the reviewer must demote or reject the current primary first.
func (c *Controller) StartAdding(typ DiagnosisType, hasActivePrimary bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if typ == DiagnosisPrimary && hasActivePrimary {
		c.conflictPopup = true
		return false
	}
	c.adding = true
	c.diagnosisType = typ
	return true
}

// Cancel abandons the add workflow and resets all modal state.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Reset clears all modal state after a successful submit, leaving add mode.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.adding = false
	c.selectedArea = nil
	c.term = ""
	c.selected = nil
	c.codingReason = ""
	c.diagnosisType = DiagnosisPrimary
	c.results = nil
	c.searchErr = ""
	c.hasSelection = false
	c.cancelPendingLocked()
	c.generation++
}

// CloseConflictPopup dismisses the informational popup without acting.
func (c *Controller) CloseConflictPopup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflictPopup = false
}

// SetSelectedArea records the drawn area a manual code will attach to.
func (c *Controller) SetSelectedArea(area *geometry.SelectedArea) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedArea = area
}

// SetCodingReason records the reviewer's free-text rationale.
func (c *Controller) SetCodingReason(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codingReason = reason
}

// Snapshot is the controller state exposed to handlers.
type Snapshot struct {
	Term          string                  `json:"term"`
	Results       []Code                  `json:"results"`
	Searching     bool                    `json:"searching"`
	SearchError   string                  `json:"search_error,omitempty"`
	Selected      *Code                   `json:"selected,omitempty"`
	HasSelection  bool                    `json:"has_selection"`
	Adding        bool                    `json:"adding"`
	DiagnosisType DiagnosisType           `json:"diagnosis_type"`
	CodingReason  string                  `json:"coding_reason"`
	SelectedArea  *geometry.SelectedArea  `json:"selected_area,omitempty"`
	ConflictPopup bool                    `json:"conflict_popup"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Term:          c.term,
		Results:       c.results,
		Searching:     c.searching,
		SearchError:   c.searchErr,
		Selected:      c.selected,
		HasSelection:  c.hasSelection,
		Adding:        c.adding,
		DiagnosisType: c.diagnosisType,
		CodingReason:  c.codingReason,
		SelectedArea:  c.selectedArea,
		ConflictPopup: c.conflictPopup,
	}
}

// Submission returns what a completed add needs: the locked code, the drawn
// area, the reason, and the target list. ok is false until all three inputs
// are present.
func (c *Controller) Submission() (code Code, area geometry.SelectedArea, reason string, typ DiagnosisType, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil || c.selectedArea == nil || c.codingReason == "" {
		return Code{}, geometry.SelectedArea{}, "", "", false
	}
	return *c.selected, *c.selectedArea, c.codingReason, c.diagnosisType, true
}
