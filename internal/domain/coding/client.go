package coding

import (
	"context"

	"github.com/icdreview/icdreview/internal/platform/apiclient"
)

// Client wraps the upstream coding-results endpoints.
type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// FetchResults loads the persisted suggestions for a document.
func (c *Client) FetchResults(ctx context.Context, docID string) (*ResultsResponse, error) {
	var resp ResultsResponse
	if err := c.api.Get(ctx, "/coding-results/"+docID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveCodingResults replaces both code lists atomically.
func (c *Client) SaveCodingResults(ctx context.Context, docID string, req *SaveRequest) error {
	return c.api.Patch(ctx, "/coding-results/"+docID, req, nil)
}
