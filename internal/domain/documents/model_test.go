package documents

import "testing"

// =========== Files Response Transform ===========

func sampleFilesResponse() *FilesResponse {
	return &FilesResponse{
		Files: []string{"485 Cert.pdf", "H&P Note.pdf", "Visit Note 1.pdf"},
		PresignedURLs: map[string]map[string]string{
			"485 Cert.pdf": {
				"1": "https://img.example/485/1",
				"2": "https://img.example/485/2",
			},
			"H&P Note.pdf": {
				"1": "https://img.example/hp/1",
			},
			"Visit Note 1.pdf": {},
		},
	}
}

func TestFromFilesResponse_Documents(t *testing.T) {
	docs, content, err := FromFilesResponse(sampleFilesResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].Pages != 2 {
		t.Errorf("expected 2 pages for first document, got %d", docs[0].Pages)
	}
	if docs[2].Pages != 0 {
		t.Errorf("expected 0 pages for empty document, got %d", docs[2].Pages)
	}
	if content.TotalPages() != 3 {
		t.Errorf("expected 3 total pages, got %d", content.TotalPages())
	}
}

func TestFromFilesResponse_TypeInference(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"485 Cert.pdf", "Physician Order"},
		{"H&P Note.pdf", "Assessment"},
		{"Visit Note 1.pdf", "Clinical Notes"},
		{"Coordination of Care.pdf", "Care Plan"},
		{"misc-scan.pdf", "Document"},
	}
	for _, tt := range tests {
		if got := inferType(tt.name); got != tt.want {
			t.Errorf("inferType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFromFilesResponse_PageContent(t *testing.T) {
	_, content, err := FromFilesResponse(sampleFilesResponse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc, ok := content["485 Cert.pdf"][2]
	if !ok {
		t.Fatal("expected page 2 content for 485 Cert.pdf")
	}
	if pc.ImageURL != "https://img.example/485/2" {
		t.Errorf("unexpected image url: %s", pc.ImageURL)
	}
	if pc.Title != "485 Cert.pdf - Page 2" {
		t.Errorf("unexpected title: %s", pc.Title)
	}
	if pc.Width != DefaultPageWidth || pc.Height != DefaultPageHeight {
		t.Errorf("expected default dimensions, got %gx%g", pc.Width, pc.Height)
	}
}

func TestFromFilesResponse_SkipsUnparseablePageNumbers(t *testing.T) {
	resp := &FilesResponse{
		Files: []string{"doc.pdf"},
		PresignedURLs: map[string]map[string]string{
			"doc.pdf": {"1": "u1", "oops": "u2"},
		},
	}
	_, content, err := FromFilesResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(content["doc.pdf"]) != 1 {
		t.Fatalf("expected 1 parsed page, got %d", len(content["doc.pdf"]))
	}
}

func TestFromFilesResponse_Nil(t *testing.T) {
	if _, _, err := FromFilesResponse(nil); err == nil {
		t.Fatal("expected error for nil response")
	}
}

func TestContentMap_PageNumbers(t *testing.T) {
	_, content, _ := FromFilesResponse(sampleFilesResponse())
	pages := content.PageNumbers("485 Cert.pdf")
	if len(pages) != 2 || pages[0] != 1 || pages[1] != 2 {
		t.Fatalf("expected [1 2], got %v", pages)
	}
	if got := content.PageNumbers("missing.pdf"); len(got) != 0 {
		t.Fatalf("expected no pages for unknown document, got %v", got)
	}
}
