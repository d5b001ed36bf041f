package collaborator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/parkfair/contest-service/internal/config"
)

// maxAttachmentBytes caps a single fetch; evidence attachments are photos
// and documents, not archives.
const maxAttachmentBytes = 32 << 20

// HTTPBlobStore fetches attachment bytes from the storage service that the
// email transport uploads to.
type HTTPBlobStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBlobStore builds the client. Returns a NullBlobStore when no
// endpoint is configured so callers degrade to metadata-only attachments.
func NewHTTPBlobStore(cfg config.CollaboratorConfig) BlobStore {
	if cfg.BlobStoreURL == "" {
		return NullBlobStore{}
	}
	return &HTTPBlobStore{
		baseURL: cfg.BlobStoreURL,
		apiKey:  cfg.BlobStoreKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}
}

func (s *HTTPBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/blobs/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob store returned %d for %s", resp.StatusCode, key)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
}
