package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/icdreview/icdreview/internal/domain/coding"
	"github.com/icdreview/icdreview/internal/domain/documents"
	"github.com/icdreview/icdreview/internal/domain/icd"
	"github.com/icdreview/icdreview/internal/domain/pdfsearch"
	"github.com/icdreview/icdreview/internal/platform/clock"
	"github.com/icdreview/icdreview/internal/platform/metrics"
	"github.com/icdreview/icdreview/internal/platform/ws"
)

// ErrNotFound is returned when a session id is unknown or already closed.
var ErrNotFound = fmt.Errorf("session not found")

// ResultsFetcher loads the upstream coding suggestions for an episode.
type ResultsFetcher interface {
	FetchResults(ctx context.Context, docID string) (*coding.ResultsResponse, error)
}

// DocumentLoader loads the upstream file listing for an episode.
type DocumentLoader interface {
	Load(ctx context.Context, docID string) ([]documents.Document, documents.ContentMap, error)
}

// PointsSource resolves the HIPPS lookup used to decorate suggestions.
type PointsSource interface {
	PointsLookup(ctx context.Context) (func(code string) (int, bool), error)
}

// Deps are the shared services sessions are built from.
type Deps struct {
	Clock     clock.Clock
	Documents DocumentLoader
	Results   ResultsFetcher
	Saver     coding.Saver
	Points    PointsSource
	ICDSearch icd.Searcher
	PDFSearch pdfsearch.Searcher
	Fetcher   documents.Fetcher
	Publisher ws.EventPublisher
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	OASISScore     int
	TherapyMinutes int
	BaseRate       float64
}

// Manager owns the live sessions.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// Create loads the episode's documents, coding results, and the HIPPS
// reference table concurrently, then builds and registers a session.
func (mgr *Manager) Create(ctx context.Context, docID string) (*Session, error) {
	var (
		wg sync.WaitGroup

		docs      []documents.Document
		content   documents.ContentMap
		docsErr   error
		results   *coding.ResultsResponse
		resErr    error
		points    coding.PointsFunc
		pointsErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		docs, content, docsErr = mgr.deps.Documents.Load(ctx, docID)
	}()
	go func() {
		defer wg.Done()
		results, resErr = mgr.deps.Results.FetchResults(ctx, docID)
	}()
	go func() {
		defer wg.Done()
		var fn func(code string) (int, bool)
		fn, pointsErr = mgr.deps.Points.PointsLookup(ctx)
		if pointsErr == nil {
			points = coding.PointsFunc(fn)
		}
	}()
	wg.Wait()

	if docsErr != nil {
		return nil, fmt.Errorf("load documents for %s: %w", docID, docsErr)
	}
	if resErr != nil {
		return nil, fmt.Errorf("load coding results for %s: %w", docID, resErr)
	}
	if pointsErr != nil {
		return nil, fmt.Errorf("load reference points: %w", pointsErr)
	}

	s := build(docID, buildInputs{
		clk:            mgr.deps.Clock,
		docs:           docs,
		content:        content,
		results:        results,
		points:         points,
		saver:          mgr.deps.Saver,
		icdSearch:      mgr.deps.ICDSearch,
		pdfSearch:      mgr.deps.PDFSearch,
		fetcher:        mgr.deps.Fetcher,
		publisher:      mgr.deps.Publisher,
		m:              mgr.deps.Metrics,
		logger:         mgr.deps.Logger,
		oasisScore:     mgr.deps.OASISScore,
		therapyMinutes: mgr.deps.TherapyMinutes,
		baseRate:       mgr.deps.BaseRate,
	})

	mgr.mu.Lock()
	mgr.sessions[s.ID] = s
	mgr.mu.Unlock()

	if mgr.deps.Metrics != nil {
		mgr.deps.Metrics.SessionsActive.Inc()
	}
	mgr.deps.Logger.Info().Str("session_id", s.ID).Str("doc_id", docID).
		Int("documents", len(docs)).Msg("session created")
	return s, nil
}

// Get returns a live session by id.
func (mgr *Manager) Get(id string) (*Session, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	s, ok := mgr.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears a session down and forgets it.
func (mgr *Manager) Close(id string) error {
	mgr.mu.Lock()
	s, ok := mgr.sessions[id]
	if ok {
		delete(mgr.sessions, id)
	}
	mgr.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.Close()
	if mgr.deps.Metrics != nil {
		mgr.deps.Metrics.SessionsActive.Dec()
	}
	mgr.deps.Logger.Info().Str("session_id", id).Msg("session closed")
	return nil
}

// Count reports the number of live sessions.
func (mgr *Manager) Count() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.sessions)
}
