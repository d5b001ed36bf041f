package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/parkfair/contest-service/internal/config"
)

// ErrTextGenUnconfigured signals the composer to use its template path.
var ErrTextGenUnconfigured = errors.New("text generator not configured")

// HTTPTextGenerator calls an external prose-generation API. The composer
// owns argument selection; the generator only phrases the letter and is
// constrained to the evidence it is handed.
type HTTPTextGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPTextGenerator builds the client. An unconfigured endpoint is not an
// error: the composer falls back to its deterministic template.
func NewHTTPTextGenerator(cfg config.CollaboratorConfig) *HTTPTextGenerator {
	return &HTTPTextGenerator{
		baseURL: cfg.TextGenURL,
		apiKey:  cfg.TextGenKey,
		model:   cfg.TextGenModel,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}
}

func (g *HTTPTextGenerator) GenerateLetter(ctx context.Context, req LetterRequest) (string, error) {
	if g.baseURL == "" || g.apiKey == "" {
		return "", ErrTextGenUnconfigured
	}

	body, err := json.Marshal(map[string]any{
		"model": g.model,
		"task":  "contest_letter",
		"input": map[string]any{
			"argument":          req.ArgumentName,
			"ticket_number":     req.ExternalNumber,
			"violation":         req.ViolationDesc,
			"violation_date":    req.ViolationDate.Format("January 2, 2006"),
			"location":          req.Location,
			"signed_by":         req.UserName,
			"provided_evidence": req.ProvidedEvidence,
			"missing_evidence":  req.MissingEvidence,
		},
		"constraints": []string{
			"reference only the provided_evidence items",
			"never invent facts, dates, or documents",
			"do not mention missing_evidence as if it were attached",
		},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("text generator returned %d", resp.StatusCode)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode text generation response: %w", err)
	}
	return payload.Text, nil
}
