package coding

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
)

// ConflictOrigin tells how a pending code reached the conflict popup:
// promotion of a secondary code or acceptance of a second primary code.
type ConflictOrigin string

const (
	ConflictPromotion ConflictOrigin = "promotion"
	ConflictAccept    ConflictOrigin = "accept"
)

// Conflict is the open popup state: the id waiting on a resolution and how
// it got there.
type Conflict struct {
	PendingID string         `json:"pending_id"`
	Origin    ConflictOrigin `json:"origin"`
}

// Engine is the coding-decision state machine for one episode. Every list
// mutation is a whole-list read-modify-write so order values stay
// contiguous; all entry points lock.
type Engine struct {
	clk clock.Clock

	mu        sync.Mutex
	primary   []CodeSuggestion
	secondary []CodeSuggestion
	selected  map[string]bool
	rejected  map[string]bool
	expanded  map[string]bool
	comments  map[string][]Comment

	activeTab  string
	searchTerm string
	conflict   *Conflict

	saving    bool
	saveErr   string
	lastSaved time.Time
}

func NewEngine(clk clock.Clock) *Engine {
	return &Engine{
		clk:       clk,
		selected:  make(map[string]bool),
		rejected:  make(map[string]bool),
		expanded:  make(map[string]bool),
		comments:  make(map[string][]Comment),
		activeTab: "all",
	}
}

// Initialize loads fresh suggestion lists, deriving the selected and
// rejected sets from each row's server status. Manually added codes count
// as selected without an explicit accept. Called again on episode switch.
func (e *Engine) Initialize(primary, secondary []CodeSuggestion, comments map[string][]Comment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.primary = append([]CodeSuggestion(nil), primary...)
	e.secondary = append([]CodeSuggestion(nil), secondary...)
	e.selected = make(map[string]bool)
	e.rejected = make(map[string]bool)
	e.expanded = make(map[string]bool)
	e.comments = make(map[string][]Comment)
	for id, list := range comments {
		e.comments[id] = append([]Comment(nil), list...)
	}
	e.conflict = nil
	e.saveErr = ""

	for _, list := range [][]CodeSuggestion{e.primary, e.secondary} {
		for _, cs := range list {
			switch {
			case cs.Status == StatusAccepted || cs.IsManuallyAdded:
				e.selected[cs.ID] = true
			case cs.Status == StatusRejected:
				e.rejected[cs.ID] = true
			}
		}
	}
}

func sortByOrder(codes []CodeSuggestion) {
	sort.SliceStable(codes, func(i, j int) bool { return codes[i].Order < codes[j].Order })
}

// normalizeOrders sorts by order and rewrites it as the contiguous 0-based
// index.
func normalizeOrders(codes []CodeSuggestion) []CodeSuggestion {
	sortByOrder(codes)
	for i := range codes {
		codes[i].Order = i
	}
	return codes
}

func indexOf(codes []CodeSuggestion, id string) int {
	for i := range codes {
		if codes[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(codes []CodeSuggestion, i int) []CodeSuggestion {
	out := make([]CodeSuggestion, 0, len(codes)-1)
	out = append(out, codes[:i]...)
	return append(out, codes[i+1:]...)
}

// isActiveLocked reports whether a code counts as an active decision:
// selected or manually added, and not rejected.
func (e *Engine) isActiveLocked(cs CodeSuggestion) bool {
	return !e.rejected[cs.ID] && (e.selected[cs.ID] || cs.IsManuallyAdded)
}

// activePrimaryLocked returns the currently active primary code, if any.
func (e *Engine) activePrimaryLocked() *CodeSuggestion {
	for i := range e.primary {
		if e.isActiveLocked(e.primary[i]) {
			return &e.primary[i]
		}
	}
	return nil
}

// HasActivePrimary reports whether a primary code is currently active.
func (e *Engine) HasActivePrimary() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activePrimaryLocked() != nil
}

// HasExactlyOneActivePrimary reports whether the completion gate holds.
func (e *Engine) HasExactlyOneActivePrimary() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.primary {
		if e.isActiveLocked(e.primary[i]) {
			n++
		}
	}
	return n == 1
}

func (e *Engine) setStatusLocked(id string, status Status) {
	for _, list := range [][]CodeSuggestion{e.primary, e.secondary} {
		for i := range list {
			if list[i].ID == id {
				list[i].Status = status
			}
		}
	}
}

func (e *Engine) acceptLocked(id string) {
	e.selected[id] = true
	delete(e.rejected, id)
	e.setStatusLocked(id, StatusAccepted)
}

func (e *Engine) rejectLocked(id string) {
	e.rejected[id] = true
	delete(e.selected, id)
	e.setStatusLocked(id, StatusRejected)
}

// Accept marks a code accepted. Accepting a primary-list code while a
// different primary is already active opens the conflict popup instead and
// leaves state unchanged.
func (e *Engine) Accept(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx := indexOf(e.primary, id); idx >= 0 {
		if active := e.activePrimaryLocked(); active != nil && active.ID != id {
			e.conflict = &Conflict{PendingID: id, Origin: ConflictAccept}
			return
		}
	}
	e.acceptLocked(id)
}

// Reject marks a code rejected. Always allowed; rejecting the active
// primary simply leaves no active primary.
func (e *Engine) Reject(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectLocked(id)
}

// UndoAccept returns an accepted code to pending.
func (e *Engine) UndoAccept(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.selected, id)
	e.setStatusLocked(id, StatusPending)
}

// UndoReject returns a rejected code to pending.
func (e *Engine) UndoReject(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rejected, id)
	e.setStatusLocked(id, StatusPending)
}

// ToggleExpanded flips a code's evidence-panel expansion.
func (e *Engine) ToggleExpanded(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.expanded[id] {
		delete(e.expanded, id)
	} else {
		e.expanded[id] = true
	}
}

// MoveToSecondary demotes a primary code, inserting it at the front of the
// secondary list. Unconditional.
func (e *Engine) MoveToSecondary(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveToSecondaryLocked(id)
}

func (e *Engine) moveToSecondaryLocked(id string) {
	idx := indexOf(e.primary, id)
	if idx < 0 {
		return
	}
	moved := e.primary[idx]
	moved.Order = -1 // sorts to the front before renumbering
	e.primary = normalizeOrders(removeAt(e.primary, idx))
	e.secondary = normalizeOrders(append([]CodeSuggestion{moved}, e.secondary...))
}

// MoveToPrimary promotes a secondary code to the end of the primary list.
// With an active primary it opens the conflict popup instead.
func (e *Engine) MoveToPrimary(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activePrimaryLocked() != nil {
		e.conflict = &Conflict{PendingID: id, Origin: ConflictPromotion}
		return
	}
	e.promoteLocked(id, len(e.primary))
}

// promoteLocked moves a secondary code into the primary list at position.
func (e *Engine) promoteLocked(id string, position int) {
	idx := indexOf(e.secondary, id)
	if idx < 0 {
		return
	}
	moved := e.secondary[idx]
	e.secondary = normalizeOrders(removeAt(e.secondary, idx))

	if position < 0 {
		position = 0
	}
	if position > len(e.primary) {
		position = len(e.primary)
	}
	out := make([]CodeSuggestion, 0, len(e.primary)+1)
	out = append(out, e.primary[:position]...)
	out = append(out, moved)
	out = append(out, e.primary[position:]...)
	for i := range out {
		out[i].Order = i
	}
	e.primary = out
}

// RemoveManuallyAdded hard-deletes a manually added code: it leaves both
// lists, both id sets, and loses its comment bucket. AI-sourced codes are
// never deleted.
func (e *Engine) RemoveManuallyAdded(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var target *CodeSuggestion
	if idx := indexOf(e.primary, id); idx >= 0 {
		target = &e.primary[idx]
	} else if idx := indexOf(e.secondary, id); idx >= 0 {
		target = &e.secondary[idx]
	}
	if target == nil {
		return fmt.Errorf("code %s not found", id)
	}
	if !target.IsManuallyAdded {
		return fmt.Errorf("code %s was not manually added", id)
	}

	if idx := indexOf(e.primary, id); idx >= 0 {
		e.primary = normalizeOrders(removeAt(e.primary, idx))
	}
	if idx := indexOf(e.secondary, id); idx >= 0 {
		e.secondary = normalizeOrders(removeAt(e.secondary, idx))
	}
	delete(e.selected, id)
	delete(e.rejected, id)
	delete(e.comments, id)
	return nil
}

// AddManual appends a reviewer-added code built from a drawn area. Manual
// codes are active without an explicit accept; adding to primary with an
// active primary opens the conflict popup and adds nothing.
func (e *Engine) AddManual(code, description, reason string, primary bool, area geometry.SelectedArea) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if primary && e.activePrimaryLocked() != nil {
		return "", fmt.Errorf("an active primary code already exists")
	}

	id := uuid.NewString()
	box := area.Box
	cs := CodeSuggestion{
		ID:              id,
		Code:            code,
		Description:     description,
		Status:          StatusPending,
		IsManuallyAdded: true,
		AIReasoning:     "Manually added by coding staff. Reason: " + reason,
		Sentences: []SupportingSentence{{
			ID:       "manual-" + id,
			Text:     fmt.Sprintf("Manually identified from %s, page %d", area.Document, area.Page),
			Document: area.Document,
			Page:     area.Page,
			Box:      &box,
		}},
		AddedTimestamp: nowStamp(e.clk.Now()),
		ActiveDisease:  true,
		ActiveMgmt:     true,
	}

	if primary {
		cs.Order = len(e.primary)
		e.primary = append(e.primary, cs)
	} else {
		cs.Order = len(e.secondary)
		e.secondary = append(e.secondary, cs)
	}
	return id, nil
}

// AddComment appends a note to a code's bucket.
func (e *Engine) AddComment(id, text, user string) Comment {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := Comment{
		ID:        uuid.NewString(),
		Text:      text,
		User:      user,
		Timestamp: nowStamp(e.clk.Now()),
	}
	e.comments[id] = append(e.comments[id], c)
	return c
}

// Reorder applies a drag from one code onto another. Within one list it is
// a move-and-renumber; across lists the dragged code is inserted at the
// target's index, with the single-active-primary check applied when the
// destination is the primary list.
func (e *Engine) Reorder(activeID, overID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if activeID == overID {
		return
	}

	activeInPrimary := indexOf(e.primary, activeID) >= 0
	overInPrimary := indexOf(e.primary, overID) >= 0
	activeInSecondary := indexOf(e.secondary, activeID) >= 0
	overInSecondary := indexOf(e.secondary, overID) >= 0

	switch {
	case activeInPrimary && overInPrimary:
		e.primary = moveWithin(e.primary, activeID, overID)
	case activeInSecondary && overInSecondary:
		e.secondary = moveWithin(e.secondary, activeID, overID)
	case activeInSecondary && overInPrimary:
		if e.activePrimaryLocked() != nil {
			e.conflict = &Conflict{PendingID: activeID, Origin: ConflictPromotion}
			return
		}
		e.promoteLocked(activeID, indexOf(e.primary, overID))
	case activeInPrimary && overInSecondary:
		idx := indexOf(e.primary, activeID)
		moved := e.primary[idx]
		e.primary = normalizeOrders(removeAt(e.primary, idx))

		target := indexOf(e.secondary, overID)
		out := make([]CodeSuggestion, 0, len(e.secondary)+1)
		out = append(out, e.secondary[:target]...)
		out = append(out, moved)
		out = append(out, e.secondary[target:]...)
		for i := range out {
			out[i].Order = i
		}
		e.secondary = out
	}
}

func moveWithin(codes []CodeSuggestion, activeID, overID string) []CodeSuggestion {
	from := indexOf(codes, activeID)
	to := indexOf(codes, overID)
	if from < 0 || to < 0 {
		return codes
	}
	out := removeAt(codes, from)
	tail := make([]CodeSuggestion, 0, len(codes))
	tail = append(tail, out[:to]...)
	tail = append(tail, codes[from])
	tail = append(tail, out[to:]...)
	for i := range tail {
		tail[i].Order = i
	}
	return tail
}

// =========== Conflict resolution ===========

// ResolveConflictDemote moves the current active primary to secondary and
// the pending code to the front of the primary list. Only meaningful for a
// promotion conflict.
func (e *Engine) ResolveConflictDemote() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conflict == nil || e.conflict.Origin != ConflictPromotion {
		e.conflict = nil
		return
	}
	pending := e.conflict.PendingID
	if active := e.activePrimaryLocked(); active != nil {
		e.moveToSecondaryLocked(active.ID)
	}
	e.promoteLocked(pending, 0)
	e.conflict = nil
}

// ResolveConflictReject rejects the current active primary, then installs
// the pending code: a promoted code moves to the front of the primary list,
// an accept-conflict code is accepted where it already sits.
func (e *Engine) ResolveConflictReject() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conflict == nil {
		return
	}
	pending := e.conflict.PendingID
	origin := e.conflict.Origin
	e.conflict = nil

	if active := e.activePrimaryLocked(); active != nil {
		e.rejectLocked(active.ID)
	}
	switch origin {
	case ConflictPromotion:
		e.promoteLocked(pending, 0)
	case ConflictAccept:
		if pending != "" {
			e.acceptLocked(pending)
		}
	}
}

// ResolveConflictAccept rejects the current active primary and accepts the
// pending code in place. The accept-conflict variant of reject-current.
func (e *Engine) ResolveConflictAccept() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conflict == nil {
		return
	}
	pending := e.conflict.PendingID
	e.conflict = nil

	if active := e.activePrimaryLocked(); active != nil {
		e.rejectLocked(active.ID)
	}
	if pending != "" {
		e.acceptLocked(pending)
	}
}

// ResolveConflictCancel closes the popup and discards the pending id.
func (e *Engine) ResolveConflictCancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflict = nil
}

// Conflict returns the open popup state, or nil.
func (e *Engine) Conflict() *Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conflict == nil {
		return nil
	}
	c := *e.conflict
	return &c
}

// SetActiveTab records the list filter tab.
func (e *Engine) SetActiveTab(tab string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeTab = tab
}

// SetSearchTerm records the suggestion-list filter text.
func (e *Engine) SetSearchTerm(term string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searchTerm = term
}

// Stats are the derived review statistics, recomputed on demand.
type Stats struct {
	AISuggestions    int     `json:"ai_suggestions"`
	NewlyAdded       int     `json:"newly_added"`
	Accepted         int     `json:"accepted"`
	Rejected         int     `json:"rejected"`
	PendingDecisions int     `json:"pending_decisions"`
	Progress         float64 `json:"progress"`
	TotalSuggestions int     `json:"total_suggestions"`
}

// Stats recomputes the review statistics. Progress is completed AI
// decisions over total AI suggestions, zero when there are none.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Stats
	for _, list := range [][]CodeSuggestion{e.primary, e.secondary} {
		for _, cs := range list {
			s.TotalSuggestions++
			if cs.IsManuallyAdded {
				s.NewlyAdded++
				continue
			}
			s.AISuggestions++
			switch {
			case e.selected[cs.ID]:
				s.Accepted++
			case e.rejected[cs.ID]:
				s.Rejected++
			default:
				s.PendingDecisions++
			}
		}
	}
	if s.AISuggestions > 0 {
		s.Progress = float64(s.Accepted+s.Rejected) / float64(s.AISuggestions) * 100
	}
	return s
}

// Snapshot is the engine state exposed to handlers.
type Snapshot struct {
	Primary    []CodeSuggestion     `json:"primary_suggestions"`
	Secondary  []CodeSuggestion     `json:"secondary_suggestions"`
	Selected   []string             `json:"selected_codes"`
	Rejected   []string             `json:"rejected_codes"`
	Expanded   []string             `json:"expanded_codes"`
	Comments   map[string][]Comment `json:"comments"`
	ActiveTab  string               `json:"active_tab"`
	SearchTerm string               `json:"search_term"`
	Conflict   *Conflict            `json:"conflict,omitempty"`
	Saving     bool                 `json:"saving"`
	SaveError  string               `json:"save_error,omitempty"`
	LastSaved  *time.Time           `json:"last_saved,omitempty"`
	Stats      Stats                `json:"stats"`
	HIPPS      HIPPSResult          `json:"hipps"`
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot captures the full engine state plus derived statistics and the
// HIPPS computation for the given external inputs.
func (e *Engine) Snapshot(oasisScore, therapyMinutes int, baseRate float64) Snapshot {
	stats := e.Stats()
	hipps := e.ComputeHIPPS(oasisScore, therapyMinutes, baseRate)

	e.mu.Lock()
	defer e.mu.Unlock()

	displayComments := make(map[string][]Comment, len(e.comments))
	for id, list := range e.comments {
		displayComments[id] = DisplayComments(list)
	}

	snap := Snapshot{
		Primary:    append([]CodeSuggestion(nil), e.primary...),
		Secondary:  append([]CodeSuggestion(nil), e.secondary...),
		Selected:   sortedKeys(e.selected),
		Rejected:   sortedKeys(e.rejected),
		Expanded:   sortedKeys(e.expanded),
		Comments:   displayComments,
		ActiveTab:  e.activeTab,
		SearchTerm: e.searchTerm,
		Saving:     e.saving,
		SaveError:  e.saveErr,
		Stats:      stats,
		HIPPS:      hipps,
	}
	if e.conflict != nil {
		c := *e.conflict
		snap.Conflict = &c
	}
	if !e.lastSaved.IsZero() {
		t := e.lastSaved
		snap.LastSaved = &t
	}
	return snap
}
