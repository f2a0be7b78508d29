package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/icdreview/icdreview/internal/domain/coding"
	"github.com/icdreview/icdreview/internal/domain/documents"
	"github.com/icdreview/icdreview/internal/domain/icd"
	"github.com/icdreview/icdreview/internal/domain/pdfsearch"
	"github.com/icdreview/icdreview/internal/platform/clock"
	"github.com/icdreview/icdreview/internal/platform/metrics"
	"github.com/icdreview/icdreview/internal/platform/ws"
)

// =========== Fakes ===========

type fakeDocLoader struct {
	docs    []documents.Document
	content documents.ContentMap
	err     error
}

func (f *fakeDocLoader) Load(_ context.Context, _ string) ([]documents.Document, documents.ContentMap, error) {
	return f.docs, f.content, f.err
}

type fakeResultsFetcher struct {
	resp *coding.ResultsResponse
	err  error
}

func (f *fakeResultsFetcher) FetchResults(_ context.Context, _ string) (*coding.ResultsResponse, error) {
	return f.resp, f.err
}

type fakePointsSource struct {
	table map[string]int
}

func (f *fakePointsSource) PointsLookup(_ context.Context) (func(code string) (int, bool), error) {
	return func(code string) (int, bool) {
		pts, ok := f.table[code]
		return pts, ok
	}, nil
}

type fakeSaver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSaver) SaveCodingResults(_ context.Context, _ string, _ *coding.SaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeICDSearcher struct {
	results []icd.Code
}

func (f *fakeICDSearcher) Search(_ context.Context, _ string, _ int) ([]icd.Code, error) {
	return f.results, nil
}

type fakePDFSearcher struct {
	resp *pdfsearch.Response
	err  error
}

func (f *fakePDFSearcher) SearchDocument(_ context.Context, _, _ string) (*pdfsearch.Response, error) {
	return f.resp, f.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *capturePublisher) Publish(_ context.Context, evt ws.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) ofType(typ ws.EventType) []ws.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ws.Event
	for _, evt := range p.events {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

// =========== Fixtures ===========

func truePtr() *bool { v := true; return &v }

func testContent() ([]documents.Document, documents.ContentMap) {
	docs := []documents.Document{
		{ID: "visit-note", Name: "Visit Note", Type: "visit_note", Pages: 2},
		{ID: "485-form", Name: "485 Form", Type: "cms_485", Pages: 1},
	}
	content := documents.ContentMap{
		"Visit Note": {
			1: {Title: "Visit Note", ImageURL: "https://img.test/vn-1.png"},
			2: {Title: "Visit Note", ImageURL: "https://img.test/vn-2.png"},
		},
		"485 Form": {
			1: {Title: "485 Form", ImageURL: "https://img.test/485-1.png"},
		},
	}
	return docs, content
}

func testResults() *coding.ResultsResponse {
	resp := &coding.ResultsResponse{EpisodeID: "ep-9"}
	resp.Results.PrimaryCodes = []coding.APICodeSuggestion{
		{
			CodeID:             "c-1",
			Rank:               1,
			DiagnosisCode:      "I10",
			DiseaseDescription: "Essential (primary) hypertension",
			AcceptCode:         truePtr(),
			CodeType:           "AI_MODEL",
			ReasonForCoding:    "Documented hypertension with ongoing medication.",
			SupportingInfo: []coding.APISupportingInfo{{
				Sentence:     "BP remains elevated, continue lisinopril.",
				DocumentName: "Visit Note",
				PageNumber:   "2",
				BBox:         [][]float64{{0.1, 0.2, 0.5, 0.2, 0.5, 0.4, 0.1, 0.4}},
			}},
		},
		{
			CodeID:             "c-2",
			Rank:               2,
			DiagnosisCode:      "E11.9",
			DiseaseDescription: "Type 2 diabetes mellitus without complications",
			CodeType:           "AI_MODEL",
		},
	}
	resp.Results.SecondaryCodes = []coding.APICodeSuggestion{
		{
			CodeID:             "c-3",
			Rank:               1,
			DiagnosisCode:      "N18.3",
			DiseaseDescription: "Chronic kidney disease, stage 3",
			CodeType:           "AI_MODEL",
		},
	}
	return resp
}

type fixture struct {
	mgr    *Manager
	mock   *clock.Mock
	pub    *capturePublisher
	saver  *fakeSaver
	loader *fakeDocLoader
	fetch  *fakeResultsFetcher
	pdf    *fakePDFSearcher
}

func newFixture() *fixture {
	docs, content := testContent()
	f := &fixture{
		mock:   clock.NewMock(),
		pub:    &capturePublisher{},
		saver:  &fakeSaver{},
		loader: &fakeDocLoader{docs: docs, content: content},
		fetch:  &fakeResultsFetcher{resp: testResults()},
		pdf:    &fakePDFSearcher{resp: &pdfsearch.Response{}},
	}
	f.mgr = NewManager(Deps{
		Clock:     f.mock,
		Documents: f.loader,
		Results:   f.fetch,
		Saver:     f.saver,
		Points:    &fakePointsSource{table: map[string]int{"I10": 18, "E11.9": 12, "N18.3": 11}},
		ICDSearch: &fakeICDSearcher{},
		PDFSearch: f.pdf,
		Fetcher: documents.FetcherFunc(func(_ context.Context, _ string) error {
			return nil
		}),
		Publisher: f.pub,
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),

		OASISScore:     85,
		TherapyMinutes: 450,
		BaseRate:       2000,
	})
	return f
}

func (f *fixture) create(t *testing.T) *Session {
	t.Helper()
	s, err := f.mgr.Create(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

// settle advances past a duration plus a couple of animation ticks.
func settle(mock *clock.Mock, d time.Duration) {
	mock.Advance(d + 40*time.Millisecond)
}

// =========== Lifecycle ===========

func TestCreateLoadsEpisode(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	state := s.State()
	if state.ID == "" || state.DocID != "doc-1" {
		t.Fatalf("unexpected identity: %+v", state)
	}
	if len(state.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(state.Documents))
	}
	if state.View.SelectedDocument != "Visit Note" || state.View.CurrentPage != 1 {
		t.Fatalf("unexpected initial view: %+v", state.View)
	}
	if state.Preload.Total != 3 {
		t.Fatalf("expected 3 preload targets, got %d", state.Preload.Total)
	}
	if got := len(state.Coding.Primary); got != 2 {
		t.Fatalf("expected 2 primary codes, got %d", got)
	}
	if state.Coding.Primary[0].HIPPSPoints != 18 {
		t.Fatalf("expected reference points on the primary, got %d", state.Coding.Primary[0].HIPPSPoints)
	}
	if state.Coding.HIPPS.CaseMixGroup == "" {
		t.Fatal("expected a computed case-mix group")
	}
}

func TestCreateFailsWhenUpstreamFails(t *testing.T) {
	f := newFixture()
	f.fetch.err = fmt.Errorf("upstream 502")

	if _, err := f.mgr.Create(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected an error")
	}
	if f.mgr.Count() != 0 {
		t.Fatalf("failed create must not register a session, have %d", f.mgr.Count())
	}
}

// blockingImageManager wires a Fetcher that holds every page-image fetch
// open until release is closed (or its context ends).
func blockingImageManager() (*Manager, chan struct{}) {
	docs, content := testContent()
	release := make(chan struct{})
	mgr := NewManager(Deps{
		Clock:     clock.NewMock(),
		Documents: &fakeDocLoader{docs: docs, content: content},
		Results:   &fakeResultsFetcher{resp: testResults()},
		Saver:     &fakeSaver{},
		Points:    &fakePointsSource{table: map[string]int{"I10": 18, "E11.9": 12, "N18.3": 11}},
		ICDSearch: &fakeICDSearcher{},
		PDFSearch: &fakePDFSearcher{resp: &pdfsearch.Response{}},
		Fetcher: documents.FetcherFunc(func(ctx context.Context, _ string) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
		Publisher: &capturePublisher{},
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),

		OASISScore:     85,
		TherapyMinutes: 450,
		BaseRate:       2000,
	})
	return mgr, release
}

func waitForSettled(t *testing.T, s *Session, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State().Preload.Settled != want {
		if time.Now().After(deadline) {
			t.Fatalf("preload never settled: %+v", s.State().Preload)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateDoesNotWaitForImagePreload(t *testing.T) {
	mgr, release := blockingImageManager()

	done := make(chan *Session, 1)
	go func() {
		s, err := mgr.Create(context.Background(), "doc-1")
		if err != nil {
			done <- nil
			return
		}
		done <- s
	}()

	var s *Session
	select {
	case s = <-done:
	case <-time.After(time.Second):
		t.Fatal("Create must not wait for page images to download")
	}
	if s == nil {
		t.Fatal("unexpected create failure")
	}

	state := s.State()
	if state.Preload.Settled != 0 || state.Preload.Total != 3 {
		t.Fatalf("expected 0/3 while images download, got %d/%d",
			state.Preload.Settled, state.Preload.Total)
	}

	close(release)
	waitForSettled(t, s, 3)
}

func TestCloseCancelsPendingPreload(t *testing.T) {
	mgr, _ := blockingImageManager()

	s, err := mgr.Create(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.Close(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The session context ends the held fetches; they settle as failed.
	waitForSettled(t, s, 3)
	if got := s.preloader.FailedCount(); got != 3 {
		t.Fatalf("expected 3 cancelled fetches, got %d", got)
	}
}

func TestCloseForgetsSessionAndStopsTimers(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	s.Navigate("", 2) // leaves an animation and a pending page report
	if err := f.mgr.Close(s.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.mgr.Get(s.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := f.mock.PendingCount(); n != 0 {
		t.Fatalf("expected no pending timers after close, got %d", n)
	}
}

func TestCloseUnknownSession(t *testing.T) {
	f := newFixture()
	if err := f.mgr.Close("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// =========== Decisions and events ===========

func TestAcceptPublishesDecisionEvent(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	s.Accept("c-3")
	evts := f.pub.ofType(ws.EventDecisionUpdated)
	if len(evts) != 1 {
		t.Fatalf("expected 1 decision event, got %d", len(evts))
	}
	if evts[0].SessionID != s.ID {
		t.Fatalf("event carries wrong session: %s", evts[0].SessionID)
	}
}

func TestAcceptSecondPrimaryOpensConflict(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	// c-1 arrived accepted, so accepting c-2 must open the popup instead.
	s.Accept("c-2")
	state := s.State()
	if state.Coding.Conflict == nil || state.Coding.Conflict.PendingID != "c-2" {
		t.Fatalf("expected a pending conflict for c-2, got %+v", state.Coding.Conflict)
	}
	if len(f.pub.ofType(ws.EventConflictOpened)) != 1 {
		t.Fatal("expected a conflict_opened event")
	}
	if len(f.pub.ofType(ws.EventDecisionUpdated)) != 0 {
		t.Fatal("a refused accept must not publish decision_updated")
	}

	s.ResolveConflictReject()
	state = s.State()
	if state.Coding.Conflict != nil {
		t.Fatalf("conflict should be resolved, got %+v", state.Coding.Conflict)
	}
	if len(f.pub.ofType(ws.EventConflictResolved)) != 1 {
		t.Fatal("expected a conflict_resolved event")
	}
}

// =========== Manual add ===========

func TestManualAddWorkflow(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	if !s.StartAddingCode(icd.DiagnosisSecondary) {
		t.Fatal("expected secondary add to start")
	}
	s.SelectICDCode(icd.Code{Code: "I50.9", Description: "Heart failure, unspecified"})
	s.SetCodingReason("Documented CHF in the visit note")

	s.BeginSelection(2, 100, 200)
	s.UpdateSelection(300, 400)
	if !s.EndSelection(800, 1000) {
		t.Fatal("expected the drag to complete")
	}

	id, err := s.SubmitManualCode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := s.State()
	if got := len(state.Coding.Secondary); got != 2 {
		t.Fatalf("expected 2 secondary codes, got %d", got)
	}
	added := state.Coding.Secondary[1]
	if added.ID != id || !added.IsManuallyAdded || added.Code != "I50.9" {
		t.Fatalf("unexpected added code: %+v", added)
	}
	if state.ICD.Adding || state.ICD.HasSelection {
		t.Fatalf("add workflow should reset after submit: %+v", state.ICD)
	}
}

func TestStartAddingPrimaryBlockedByActivePrimary(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	if s.StartAddingCode(icd.DiagnosisPrimary) {
		t.Fatal("expected primary add to be refused while c-1 is active")
	}
	if !s.State().ICD.ConflictPopup {
		t.Fatal("expected the conflict popup to open")
	}
}

func TestSubmitWithoutInputsFails(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	s.StartAddingCode(icd.DiagnosisSecondary)
	if _, err := s.SubmitManualCode(); err == nil {
		t.Fatal("expected an error without code, area, and reason")
	}
}

// =========== Evidence navigation ===========

func TestShowEvidenceNavigatesAndHighlights(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	if err := s.ShowEvidence("c-1", "c-1-0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	settle(f.mock, 2*time.Second)

	vs := s.ViewerState()
	if vs.CurrentPage != 2 {
		t.Fatalf("expected the viewer on page 2, got %d", vs.CurrentPage)
	}
	if vs.Evidence == nil || vs.Evidence.Page != 2 || vs.Evidence.Document != "Visit Note" {
		t.Fatalf("expected a live evidence highlight, got %+v", vs.Evidence)
	}
	if len(f.pub.ofType(ws.EventHighlightShown)) != 1 {
		t.Fatal("expected a highlight_shown event")
	}

	// The spotlight expires on its own.
	settle(f.mock, 30*time.Second)
	if vs := s.ViewerState(); vs.Evidence != nil {
		t.Fatalf("expected the highlight to expire, got %+v", vs.Evidence)
	}
}

func TestShowEvidenceUnknownSentence(t *testing.T) {
	f := newFixture()
	s := f.create(t)
	if err := s.ShowEvidence("c-1", "c-1-9"); err == nil {
		t.Fatal("expected an error")
	}
}

// =========== PDF search ===========

func TestSearchPDFNavigatesToFirstMatch(t *testing.T) {
	f := newFixture()
	f.pdf.resp = &pdfsearch.Response{
		TotalMatches: 2,
		Results: []pdfsearch.Match{
			{
				DocumentName: "Visit Note",
				PageNumber:   2,
				BBox:         [][]float64{{0.1, 0.1, 0.3, 0.1, 0.3, 0.2, 0.1, 0.2}},
				TextSnippet:  "heart failure",
				MatchScore:   0.92,
			},
			{
				DocumentName: "485 Form",
				PageNumber:   1,
				BBox:         [][]float64{{0.2, 0.5, 0.4, 0.5, 0.4, 0.6, 0.2, 0.6}},
				TextSnippet:  "heart failure",
				MatchScore:   0.88,
			},
		},
	}
	s := f.create(t)

	if err := s.SearchPDF(context.Background(), "heart failure"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.State().PDFSearch
	if snap.TotalMatches != 2 || snap.CurrentIndex != 0 {
		t.Fatalf("unexpected search state: %+v", snap)
	}
	settle(f.mock, 2*time.Second)
	vs := s.ViewerState()
	if vs.CurrentPage != 2 || vs.Search == nil || vs.Search.Page != 2 {
		t.Fatalf("expected the viewer centered on the first match: %+v", vs)
	}

	// Next wraps into the other document.
	s.NextMatch()
	settle(f.mock, 2*time.Second)
	vs = s.ViewerState()
	if vs.SelectedDocument != "485 Form" || vs.Search == nil || vs.Search.Document != "485 Form" {
		t.Fatalf("expected a document switch to the second match: %+v", vs)
	}

	s.ClearPDFSearch()
	if vs := s.ViewerState(); vs.Search != nil {
		t.Fatalf("expected the search highlight to clear, got %+v", vs.Search)
	}
}

// =========== Save ===========

func TestSavePublishesCompletion(t *testing.T) {
	f := newFixture()
	s := f.create(t)

	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.saver.calls != 1 {
		t.Fatalf("expected 1 upstream save, got %d", f.saver.calls)
	}
	if len(f.pub.ofType(ws.EventSaveCompleted)) != 1 {
		t.Fatal("expected a save_completed event")
	}
	if s.State().Coding.LastSaved == nil {
		t.Fatal("expected last_saved to be recorded")
	}
}

func TestSaveFailureDoesNotPublish(t *testing.T) {
	f := newFixture()
	s := f.create(t)
	f.saver.err = fmt.Errorf("upstream 502")

	if err := s.Save(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if len(f.pub.ofType(ws.EventSaveCompleted)) != 0 {
		t.Fatal("a failed save must not publish save_completed")
	}
}
