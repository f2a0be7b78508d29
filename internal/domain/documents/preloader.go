package documents

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Fetcher retrieves one page image by URL. The session wires in an HTTP
// implementation; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) error

func (f FetcherFunc) Fetch(ctx context.Context, url string) error { return f(ctx, url) }

type urlState int

const (
	statePending urlState = iota
	stateLoaded
	stateFailed
)

// Preloader warms the page-image cache for an episode. Every URL is fetched
// exactly once; a failed fetch counts as settled and is never retried — the
// viewer will surface the broken page on render.
type Preloader struct {
	fetcher Fetcher
	loaded  prometheus.Counter // may be nil
	logger  zerolog.Logger

	mu     sync.Mutex
	gen    int
	total  int
	states map[string]urlState
	wg     *sync.WaitGroup
}

func NewPreloader(fetcher Fetcher, loaded prometheus.Counter, logger zerolog.Logger) *Preloader {
	return &Preloader{
		fetcher: fetcher,
		loaded:  loaded,
		logger:  logger.With().Str("component", "preloader").Logger(),
		states:  make(map[string]urlState),
	}
}

// Reset points the preloader at a new episode's content map, discarding all
// prior progress. Pages sharing an image URL count once.
func (p *Preloader) Reset(content ContentMap) {
	urls := make(map[string]urlState)
	for _, pages := range content {
		for _, pc := range pages {
			urls[pc.ImageURL] = statePending
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.total = len(urls)
	p.states = urls
}

// Start launches one fetch per distinct page image and returns as soon as
// they are in flight; the session stays responsive while images settle in
// the background. Cancelling ctx abandons the remaining fetches. Progress
// is observable throughout; Wait blocks until everything settles.
func (p *Preloader) Start(ctx context.Context, content ContentMap) {
	p.Reset(content)

	wg := &sync.WaitGroup{}
	p.mu.Lock()
	p.wg = wg
	gen := p.gen
	p.mu.Unlock()

	started := make(map[string]bool)
	for docName, pages := range content {
		for pageNum, pc := range pages {
			url := pc.ImageURL
			if started[url] {
				continue
			}
			started[url] = true

			wg.Add(1)
			go func(doc string, page int) {
				defer wg.Done()
				err := p.fetcher.Fetch(ctx, url)

				p.mu.Lock()
				defer p.mu.Unlock()
				if p.gen != gen {
					return // superseded by a newer episode
				}
				if err != nil {
					p.states[url] = stateFailed
					p.logger.Warn().Err(err).Str("document", doc).Int("page", page).
						Msg("page image preload failed")
					return
				}
				p.states[url] = stateLoaded
				if p.loaded != nil {
					p.loaded.Inc()
				}
			}(docName, pageNum)
		}
	}
}

// Wait blocks until every fetch from the most recent Start has settled.
func (p *Preloader) Wait() {
	p.mu.Lock()
	wg := p.wg
	p.mu.Unlock()
	if wg != nil {
		wg.Wait()
	}
}

func (p *Preloader) counts() (loaded, failed int) {
	for _, st := range p.states {
		switch st {
		case stateLoaded:
			loaded++
		case stateFailed:
			failed++
		}
	}
	return
}

// Progress reports settled counts against the total of distinct image URLs.
func (p *Preloader) Progress() (settled, total int, percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loaded, failed := p.counts()
	settled = loaded + failed
	if p.total == 0 {
		return 0, 0, 100
	}
	return settled, p.total, float64(settled) / float64(p.total) * 100
}

// AllSettled reports whether every page image has loaded or failed.
func (p *Preloader) AllSettled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	loaded, failed := p.counts()
	return loaded+failed >= p.total
}

// FailedCount reports how many images failed to load.
func (p *Preloader) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, failed := p.counts()
	return failed
}

// IsLoaded reports whether a specific image URL loaded successfully.
func (p *Preloader) IsLoaded(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[url] == stateLoaded
}
