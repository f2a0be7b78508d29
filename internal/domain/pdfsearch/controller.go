// Package pdfsearch drives explicit full-text search across a document: a
// submit-only controller with a circular match cursor over the backend's
// search_document endpoint.
package pdfsearch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/icdreview/icdreview/internal/geometry"
)

// Highlight is one ordered search match with its overlay box.
type Highlight struct {
	ID          string               `json:"id"`
	Box         geometry.BoundingBox `json:"box"`
	Document    string               `json:"document"`
	Page        int                  `json:"page"`
	TextSnippet string               `json:"text_snippet"`
	MatchScore  float64              `json:"match_score"`
}

// Response is the upstream search_document payload.
type Response struct {
	TotalMatches int     `json:"total_matches"`
	Results      []Match `json:"results"`
}

// Match is one raw result row; bbox is the 8-number corner polygon.
type Match struct {
	DocumentName string      `json:"document_name"`
	PageNumber   int         `json:"page_number"`
	BBox         [][]float64 `json:"bbox"`
	TextSnippet  string      `json:"text_snippet"`
	MatchScore   float64     `json:"match_score"`
}

// Searcher runs one remote document search. The session wires the upstream
// client in; tests inject fakes.
type Searcher interface {
	SearchDocument(ctx context.Context, docID, term string) (*Response, error)
}

// Controller owns the search text, the last executed term, and the ordered
// highlight list with its circular cursor. Text changes never call the
// backend; only an explicit submit does, and resubmitting the same trimmed
// term is a no-op.
type Controller struct {
	searcher Searcher
	docID    string

	mu         sync.Mutex
	term       string
	lastTerm   string
	results    []Highlight
	index      int
	total      int
	searching  bool
	searchErr  string
	generation uint64
}

func NewController(searcher Searcher, docID string) *Controller {
	return &Controller{searcher: searcher, docID: docID}
}

func transform(matches []Match) []Highlight {
	highlights := make([]Highlight, 0, len(matches))
	for i, m := range matches {
		var box geometry.BoundingBox
		if len(m.BBox) > 0 {
			box = geometry.FromPolygon(m.BBox[0])
		} else {
			box = geometry.FullPage()
		}
		highlights = append(highlights, Highlight{
			ID:          fmt.Sprintf("search-%d", i),
			Box:         box,
			Document:    m.DocumentName,
			Page:        m.PageNumber,
			TextSnippet: m.TextSnippet,
			MatchScore:  m.MatchScore,
		})
	}
	return highlights
}

// SetTerm records text input. Clearing the text resets everything; editing
// to a term that differs from the last executed search clears the displayed
// results so stale matches never show against new text, but keeps the text.
func (c *Controller) SetTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.term = term
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		c.clearAllLocked()
		return
	}
	if trimmed != c.lastTerm {
		c.results = nil
		c.index = 0
		c.total = 0
		c.searchErr = ""
	}
}

// Submit runs the search for the current term. Empty text clears results;
// a term identical to the last executed one is skipped.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	trimmed := strings.TrimSpace(c.term)
	if trimmed == "" {
		c.results = nil
		c.index = 0
		c.total = 0
		c.searchErr = ""
		c.mu.Unlock()
		return nil
	}
	if trimmed == c.lastTerm {
		c.mu.Unlock()
		return nil
	}
	c.searching = true
	c.searchErr = ""
	c.generation++
	gen := c.generation
	docID := c.docID
	c.mu.Unlock()

	resp, err := c.searcher.SearchDocument(ctx, docID, trimmed)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.searching = false
	if err != nil {
		c.searchErr = err.Error()
		c.results = nil
		c.total = 0
		c.index = 0
		return err
	}
	c.results = transform(resp.Results)
	c.total = resp.TotalMatches
	c.index = 0
	c.lastTerm = trimmed
	return nil
}

// Next advances the match cursor, wrapping circularly.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) > 0 {
		c.index = (c.index + 1) % len(c.results)
	}
}

// Prev moves the match cursor back, wrapping circularly.
func (c *Controller) Prev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.results); n > 0 {
		c.index = (c.index - 1 + n) % n
	}
}

// Clear empties the term, the last-searched marker, and all results.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearAllLocked()
}

func (c *Controller) clearAllLocked() {
	c.term = ""
	c.lastTerm = ""
	c.results = nil
	c.index = 0
	c.total = 0
	c.searchErr = ""
	c.generation++
}

// Current returns the highlight under the cursor, or nil without results.
func (c *Controller) Current() *Highlight {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return nil
	}
	h := c.results[c.index]
	return &h
}

// Snapshot is the controller state exposed to handlers.
type Snapshot struct {
	Term         string      `json:"term"`
	LastSearched string      `json:"last_searched"`
	Results      []Highlight `json:"results"`
	CurrentIndex int         `json:"current_index"`
	TotalMatches int         `json:"total_matches"`
	Searching    bool        `json:"searching"`
	SearchError  string      `json:"search_error,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Term:         c.term,
		LastSearched: c.lastTerm,
		Results:      c.results,
		CurrentIndex: c.index,
		TotalMatches: c.total,
		Searching:    c.searching,
		SearchError:  c.searchErr,
	}
}
