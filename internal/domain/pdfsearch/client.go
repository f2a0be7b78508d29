package pdfsearch

import (
	"context"

	"github.com/icdreview/icdreview/internal/platform/apiclient"
)

type upstreamSearcher struct {
	client *apiclient.Client
}

// NewUpstreamSearcher searches through the coding backend's
// search_document endpoint.
func NewUpstreamSearcher(client *apiclient.Client) Searcher {
	return &upstreamSearcher{client: client}
}

func (s *upstreamSearcher) SearchDocument(ctx context.Context, docID, term string) (*Response, error) {
	var resp Response
	body := map[string]string{"search_string": term}
	if err := s.client.Post(ctx, "/search_document/"+docID, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
