// Package session binds one episode's documents, viewer, coding engine,
// and search controllers behind a single aggregate. Each REST or websocket
// consumer talks to a Session; the Session serializes access the way a
// single UI thread would.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/icdreview/icdreview/internal/domain/coding"
	"github.com/icdreview/icdreview/internal/domain/docview"
	"github.com/icdreview/icdreview/internal/domain/documents"
	"github.com/icdreview/icdreview/internal/domain/icd"
	"github.com/icdreview/icdreview/internal/domain/pdfsearch"
	"github.com/icdreview/icdreview/internal/domain/viewer"
	"github.com/icdreview/icdreview/internal/geometry"
	"github.com/icdreview/icdreview/internal/platform/clock"
	"github.com/icdreview/icdreview/internal/platform/metrics"
	"github.com/icdreview/icdreview/internal/platform/ws"
)

// Session is the live review state for one episode. The inner controllers
// each carry their own lock; the Session itself holds no additional state
// beyond wiring, so its methods delegate without locking.
type Session struct {
	ID        string
	DocID     string
	CreatedAt time.Time

	logger zerolog.Logger

	docs      []documents.Document
	content   documents.ContentMap
	preloader *documents.Preloader
	cancel    context.CancelFunc

	coding *coding.Engine
	viewer *viewer.Engine
	view   *docview.Controller
	icd    *icd.Controller
	pdf    *pdfsearch.Controller

	saver     coding.Saver
	publisher ws.EventPublisher
	m         *metrics.Metrics

	oasisScore     int
	therapyMinutes int
	baseRate       float64
}

func (s *Session) publish(typ ws.EventType, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.Background(), ws.NewEvent(typ, s.ID, data)); err != nil {
		s.logger.Warn().Err(err).Str("event", string(typ)).Msg("event publish failed")
	}
}

// Close stops the preloader and every timer the inner controllers hold.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	// Dropping the document stops animations, key repeats, and the pending
	// page report.
	s.viewer.SetDocument("", viewer.Layout{})
	s.view.ClearHighlight()
	s.icd.Reset()
	s.pdf.Clear()
}

// State is the full snapshot a client renders from.
type State struct {
	ID        string               `json:"id"`
	DocID     string               `json:"doc_id"`
	CreatedAt time.Time            `json:"created_at"`
	Documents []documents.Document `json:"documents"`
	Preload   PreloadProgress      `json:"preload"`
	View      docview.Snapshot     `json:"view"`
	Coding    coding.Snapshot      `json:"coding"`
	ICD       icd.Snapshot         `json:"icd"`
	PDFSearch pdfsearch.Snapshot   `json:"pdf_search"`
}

// PreloadProgress reports how much of the page-image set has settled.
type PreloadProgress struct {
	Settled int     `json:"settled"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

func (s *Session) State() State {
	settled, total, percent := s.preloader.Progress()
	return State{
		ID:        s.ID,
		DocID:     s.DocID,
		CreatedAt: s.CreatedAt,
		Documents: s.docs,
		Preload:   PreloadProgress{Settled: settled, Total: total, Percent: percent},
		View:      s.view.Snapshot(),
		Coding:    s.coding.Snapshot(s.oasisScore, s.therapyMinutes, s.baseRate),
		ICD:       s.icd.Snapshot(),
		PDFSearch: s.pdf.Snapshot(),
	}
}

// =========== Coding decisions ===========

// afterDecision reports the outcome of a mutation that may have opened the
// conflict popup instead of applying.
func (s *Session) afterDecision(action string) {
	if s.m != nil {
		s.m.RecordDecision(action)
	}
	if c := s.coding.Conflict(); c != nil {
		s.publish(ws.EventConflictOpened, c)
		return
	}
	s.publish(ws.EventDecisionUpdated, map[string]string{"action": action})
}

func (s *Session) Accept(id string) {
	s.coding.Accept(id)
	s.afterDecision("accept")
}

func (s *Session) Reject(id string) {
	s.coding.Reject(id)
	s.afterDecision("reject")
}

func (s *Session) UndoAccept(id string) {
	s.coding.UndoAccept(id)
	s.afterDecision("undo_accept")
}

func (s *Session) UndoReject(id string) {
	s.coding.UndoReject(id)
	s.afterDecision("undo_reject")
}

func (s *Session) Promote(id string) {
	s.coding.MoveToPrimary(id)
	s.afterDecision("promote")
}

func (s *Session) Demote(id string) {
	s.coding.MoveToSecondary(id)
	s.afterDecision("demote")
}

func (s *Session) Reorder(activeID, overID string) {
	s.coding.Reorder(activeID, overID)
	s.afterDecision("reorder")
}

func (s *Session) RemoveCode(id string) error {
	if err := s.coding.RemoveManuallyAdded(id); err != nil {
		return err
	}
	s.afterDecision("remove")
	return nil
}

func (s *Session) AddCodeComment(id, text, user string) coding.Comment {
	c := s.coding.AddComment(id, text, user)
	s.publish(ws.EventDecisionUpdated, map[string]string{"action": "comment", "code_id": id})
	return c
}

// StartAddingCode opens the manual-add workflow for the given list. It is
// refused (and the conflict popup opens) when the target is primary and a
// primary code is already active.
func (s *Session) StartAddingCode(typ icd.DiagnosisType) bool {
	ok := s.icd.StartAdding(typ, s.coding.HasActivePrimary())
	if ok {
		s.viewer.SetAddMode(true)
	}
	return ok
}

// SubmitManualCode turns the add-workflow inputs (selected code, drawn
// area, reason) into a new suggestion and resets the workflow.
func (s *Session) SubmitManualCode() (string, error) {
	code, area, reason, typ, ok := s.icd.Submission()
	if !ok {
		return "", fmt.Errorf("manual add needs a selected code, a drawn area, and a reason")
	}
	id, err := s.coding.AddManual(code.Code, code.Description, reason, typ == icd.DiagnosisPrimary, area)
	if err != nil {
		return "", err
	}
	s.icd.Reset()
	s.viewer.SetAddMode(false)
	s.afterDecision("add_manual")
	return id, nil
}

func (s *Session) CancelAddingCode() {
	s.icd.Cancel()
	s.viewer.SetAddMode(false)
}

// =========== Conflict resolution ===========

func (s *Session) ResolveConflictDemote() {
	s.coding.ResolveConflictDemote()
	s.publish(ws.EventConflictResolved, map[string]string{"resolution": "demote"})
}

func (s *Session) ResolveConflictReject() {
	s.coding.ResolveConflictReject()
	s.publish(ws.EventConflictResolved, map[string]string{"resolution": "reject"})
}

func (s *Session) ResolveConflictAccept() {
	s.coding.ResolveConflictAccept()
	s.publish(ws.EventConflictResolved, map[string]string{"resolution": "accept"})
}

func (s *Session) CancelConflict() {
	s.coding.ResolveConflictCancel()
	s.icd.CloseConflictPopup()
	s.publish(ws.EventConflictResolved, map[string]string{"resolution": "cancel"})
}

// =========== Save ===========

func (s *Session) Save(ctx context.Context) error {
	err := s.coding.Save(ctx, s.saver, s.DocID)
	if s.m != nil {
		if err != nil {
			s.m.RecordSave("error")
		} else {
			s.m.RecordSave("ok")
		}
	}
	if err != nil {
		return err
	}
	s.publish(ws.EventSaveCompleted, map[string]string{"doc_id": s.DocID})
	return nil
}

// =========== Viewer ===========

// Navigate moves the viewer to a document and page. An empty document name
// means the currently selected one.
func (s *Session) Navigate(document string, page int) {
	if document != "" && document != s.view.SelectedDocument() {
		s.view.SwitchDocument(document, page)
		s.publish(ws.EventDocumentSwitched, map[string]interface{}{"document": document, "page": page})
		return
	}
	s.view.GoToPage(page)
}

// ShowEvidence navigates to a supporting sentence's location and spotlights
// it. A sentence without a bounding box highlights the whole page.
func (s *Session) ShowEvidence(codeID, sentenceID string) error {
	sentence, ok := s.findSentence(codeID, sentenceID)
	if !ok {
		return fmt.Errorf("sentence %s not found on code %s", sentenceID, codeID)
	}
	box := geometry.FullPage()
	if sentence.Box != nil {
		box = *sentence.Box
	}
	s.view.NavigateToEvidence(viewer.Highlight{
		ID:       sentence.ID,
		Box:      box,
		Document: sentence.Document,
		Page:     sentence.Page,
	})
	if s.m != nil {
		s.m.HighlightsShownTotal.Inc()
	}
	s.publish(ws.EventHighlightShown, map[string]interface{}{
		"code_id": codeID, "sentence_id": sentenceID,
		"document": sentence.Document, "page": sentence.Page,
	})
	return nil
}

func (s *Session) findSentence(codeID, sentenceID string) (coding.SupportingSentence, bool) {
	snap := s.coding.Snapshot(s.oasisScore, s.therapyMinutes, s.baseRate)
	for _, list := range [][]coding.CodeSuggestion{snap.Primary, snap.Secondary} {
		for _, cs := range list {
			if cs.ID != codeID {
				continue
			}
			for _, sent := range cs.Sentences {
				if sent.ID == sentenceID {
					return sent, true
				}
			}
		}
	}
	return coding.SupportingSentence{}, false
}

func (s *Session) ClearHighlights() {
	s.view.ClearHighlight()
	s.view.SetSearchHighlight(nil)
	s.publish(ws.EventHighlightsCleared, nil)
}

func (s *Session) SetViewport(width, height float64) { s.view.SetViewport(width, height) }

func (s *Session) Wheel(dx, dy float64) { s.viewer.Wheel(dx, dy) }

func (s *Session) KeyDown(key string, mods viewer.Modifiers) { s.viewer.KeyDown(key, mods) }

func (s *Session) KeyUp(key string) { s.viewer.KeyUp(key) }

func (s *Session) BeginSelection(page int, x, y float64) { s.viewer.BeginSelection(page, x, y) }

func (s *Session) UpdateSelection(x, y float64) { s.viewer.UpdateSelection(x, y) }

func (s *Session) MouseLeave() { s.viewer.MouseLeave() }

func (s *Session) EndSelection(imgWidth, imgHeight float64) bool {
	return s.viewer.EndSelection(imgWidth, imgHeight)
}

func (s *Session) StartEditingPage() { s.view.StartEditingPage() }

func (s *Session) SetPageInput(text string) { s.view.SetPageInput(text) }

func (s *Session) CommitPageInput() { s.view.CommitPageInput() }

func (s *Session) CancelPageInput() { s.view.CancelPageInput() }

func (s *Session) PageOverlays(page int, imgWidth, imgHeight float64) viewer.Overlays {
	return s.viewer.PageOverlays(page, imgWidth, imgHeight)
}

// ViewerState is the docview snapshot plus the live scroll offset.
type ViewerState struct {
	docview.Snapshot
	ScrollTop float64 `json:"scroll_top"`
}

func (s *Session) ViewerState() ViewerState {
	return ViewerState{Snapshot: s.view.Snapshot(), ScrollTop: s.viewer.ScrollTop()}
}

// =========== ICD search ===========

func (s *Session) SetICDSearchTerm(term string) { s.icd.SetSearchTerm(term) }

func (s *Session) SelectICDCode(code icd.Code) { s.icd.Select(code) }

func (s *Session) SetCodingReason(text string) { s.icd.SetCodingReason(text) }

// =========== PDF search ===========

// SearchPDF runs a full-text search and, when there are matches, moves the
// viewer to the first one.
func (s *Session) SearchPDF(ctx context.Context, term string) error {
	s.pdf.SetTerm(term)
	if err := s.pdf.Submit(ctx); err != nil {
		return err
	}
	if s.m != nil {
		s.m.PDFSearchesTotal.Inc()
	}
	s.syncSearchHighlight()
	return nil
}

func (s *Session) NextMatch() {
	s.pdf.Next()
	s.syncSearchHighlight()
}

func (s *Session) PrevMatch() {
	s.pdf.Prev()
	s.syncSearchHighlight()
}

func (s *Session) ClearPDFSearch() {
	s.pdf.Clear()
	s.view.SetSearchHighlight(nil)
}

// syncSearchHighlight pushes the current match into the viewer and jumps
// to its page.
func (s *Session) syncSearchHighlight() {
	cur := s.pdf.Current()
	if cur == nil {
		s.view.SetSearchHighlight(nil)
		return
	}
	s.Navigate(cur.Document, cur.Page)
	s.view.SetSearchHighlight(&viewer.Highlight{
		ID:       cur.ID,
		Box:      cur.Box,
		Document: cur.Document,
		Page:     cur.Page,
	})
}

// =========== Construction ===========

type buildInputs struct {
	clk       clock.Clock
	docs      []documents.Document
	content   documents.ContentMap
	results   *coding.ResultsResponse
	points    coding.PointsFunc
	saver     coding.Saver
	icdSearch icd.Searcher
	pdfSearch pdfsearch.Searcher
	fetcher   documents.Fetcher
	publisher ws.EventPublisher
	m         *metrics.Metrics
	logger    zerolog.Logger

	oasisScore     int
	therapyMinutes int
	baseRate       float64
}

// build wires the aggregate: the viewer reports page changes into the
// docview controller and out over the websocket topic, drawn areas feed
// the manual-add workflow, and Escape cancels it.
func build(docID string, in buildInputs) *Session {
	s := &Session{
		ID:             uuid.NewString(),
		DocID:          docID,
		CreatedAt:      in.clk.Now(),
		logger:         in.logger,
		docs:           in.docs,
		content:        in.content,
		saver:          in.saver,
		publisher:      in.publisher,
		m:              in.m,
		oasisScore:     in.oasisScore,
		therapyMinutes: in.therapyMinutes,
		baseRate:       in.baseRate,
	}

	s.icd = icd.NewController(in.clk, in.icdSearch)
	s.pdf = pdfsearch.NewController(in.pdfSearch, docID)

	s.viewer = viewer.NewEngine(in.clk,
		viewer.WithPageChangeListener(func(page int) {
			s.view.HandlePageChangeFromViewer(page)
			s.publish(ws.EventPageChanged, map[string]int{"page": page})
		}),
		viewer.WithAreaListener(func(area geometry.SelectedArea) {
			s.icd.SetSelectedArea(&area)
		}),
		viewer.WithCancelAddListener(func() {
			s.CancelAddingCode()
		}),
	)
	s.view = docview.NewController(in.clk, s.viewer, in.docs)

	s.coding = coding.NewEngine(in.clk)
	primary, secondary, comments := coding.FromResultsResponse(in.results, in.points)
	s.coding.Initialize(primary, secondary, comments)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.preloader = documents.NewPreloader(in.fetcher, in.m.PagesPreloadedTotal, in.logger)
	s.preloader.Start(ctx, in.content)

	return s
}
