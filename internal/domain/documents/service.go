package documents

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/icdreview/icdreview/internal/platform/apiclient"
)

// Service fetches an episode's document set from the upstream coding
// backend and exposes the transformed list plus content map.
type Service struct {
	client *apiclient.Client
	logger zerolog.Logger
}

func NewService(client *apiclient.Client, logger zerolog.Logger) *Service {
	return &Service{client: client, logger: logger.With().Str("component", "documents").Logger()}
}

// Load retrieves and transforms the files listing for one episode. A fetch
// failure yields an empty result set; the caller shows a retry affordance
// rather than failing the session.
func (s *Service) Load(ctx context.Context, docID string) ([]Document, ContentMap, error) {
	var resp FilesResponse
	if err := s.client.Get(ctx, "/files/"+docID, nil, &resp); err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("files fetch failed")
		return nil, nil, fmt.Errorf("fetch files for %s: %w", docID, err)
	}
	return FromFilesResponse(&resp)
}

// HTTPFetcher preloads page images over plain HTTP GETs. Presigned URLs
// carry their own auth, so no bearer token is attached.
type HTTPFetcher struct {
	Client *http.Client
}

// defaultImageClient bounds each image fetch so a stalled presigned URL
// cannot pin a preload goroutine past the session's lifetime.
var defaultImageClient = &http.Client{Timeout: 30 * time.Second}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) error {
	client := f.Client
	if client == nil {
		client = defaultImageClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("image fetch: status %d", resp.StatusCode)
	}
	return nil
}
