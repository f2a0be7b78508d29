// Package documents models an episode's scanned-document set: the document
// list, the per-page image content map, and the image preloader that warms
// the page cache before review starts.
package documents

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Document is one scanned file in an episode. Documents are immutable once
// fetched and are identified by name, which keys the content map.
type Document struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Pages int    `json:"pages"`
}

// PageContent describes a single rendered page image.
type PageContent struct {
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// ContentMap maps document name -> page number -> page content.
type ContentMap map[string]map[int]PageContent

// FilesResponse is the upstream document-listing payload.
type FilesResponse struct {
	Files         []string                     `json:"files"`
	PresignedURLs map[string]map[string]string `json:"presigned_urls"`
}

// Rendered page images default to these dimensions until the real ones are
// known; all overlay geometry is normalized so the exact values only matter
// for aspect ratio.
const (
	DefaultPageWidth  = 800
	DefaultPageHeight = 1000
)

// inferType classifies a document by filename keywords.
func inferType(name string) string {
	switch {
	case strings.Contains(name, "485"):
		return "Physician Order"
	case strings.Contains(name, "H&P"):
		return "Assessment"
	case strings.Contains(name, "Visit Note"):
		return "Clinical Notes"
	case strings.Contains(name, "Coordination"):
		return "Care Plan"
	default:
		return "Document"
	}
}

// FromFilesResponse transforms the upstream files payload into the document
// list and content map. Page count comes from the URL map size; page numbers
// that fail to parse are skipped.
func FromFilesResponse(resp *FilesResponse) ([]Document, ContentMap, error) {
	if resp == nil {
		return nil, nil, fmt.Errorf("nil files response")
	}

	docs := make([]Document, 0, len(resp.Files))
	for _, name := range resp.Files {
		docs = append(docs, Document{
			ID:    name,
			Name:  name,
			Type:  inferType(name),
			Pages: len(resp.PresignedURLs[name]),
		})
	}

	content := make(ContentMap, len(resp.PresignedURLs))
	for name, pages := range resp.PresignedURLs {
		content[name] = make(map[int]PageContent, len(pages))
		for pageStr, url := range pages {
			page, err := strconv.Atoi(pageStr)
			if err != nil {
				continue
			}
			content[name][page] = PageContent{
				Title:    fmt.Sprintf("%s - Page %d", name, page),
				ImageURL: url,
				Width:    DefaultPageWidth,
				Height:   DefaultPageHeight,
			}
		}
	}

	return docs, content, nil
}

// PageNumbers returns a document's page numbers in ascending order.
func (m ContentMap) PageNumbers(document string) []int {
	pages := make([]int, 0, len(m[document]))
	for p := range m[document] {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// TotalPages counts every page across all documents.
func (m ContentMap) TotalPages() int {
	n := 0
	for _, pages := range m {
		n += len(pages)
	}
	return n
}
