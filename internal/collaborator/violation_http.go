package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/parkfair/contest-service/internal/config"
	util "github.com/parkfair/contest-service/pkg/util/errorutil"
)

// HTTPViolationSource queries the municipal violation records API.
type HTTPViolationSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPViolationSource builds the client. Returns a config error when the
// endpoint is not configured; the sweep has no fallback source.
func NewHTTPViolationSource(cfg config.CollaboratorConfig) (*HTTPViolationSource, error) {
	if cfg.ViolationSourceURL == "" {
		return nil, util.NewConfigError("VIOLATION_SOURCE_URL not configured")
	}
	return &HTTPViolationSource{
		baseURL: cfg.ViolationSourceURL,
		apiKey:  cfg.ViolationSourceKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}, nil
}

func (s *HTTPViolationSource) RecentViolations(ctx context.Context, plate, state string, since time.Time) ([]ViolationRecord, error) {
	endpoint := fmt.Sprintf("%s/violations?%s", s.baseURL, url.Values{
		"plate": {plate},
		"state": {state},
		"since": {since.Format("2006-01-02")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		return nil, fmt.Errorf("violation source returned %d", resp.StatusCode)
	}

	var payload struct {
		Records []ViolationRecord `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode violation response: %w", err)
	}
	return payload.Records, nil
}
