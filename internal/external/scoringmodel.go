package external

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/talentpipe/sourcing/internal/logger"
)

// ScoringModelClient calls the collaborator that derives a scoring model from
// parsed search criteria.
type ScoringModelClient struct {
	httpClient
	url string
}

// NewScoringModelClient creates a scoring-model client.
func NewScoringModelClient(url string, timeout time.Duration, log logger.Logger) *ScoringModelClient {
	return &ScoringModelClient{
		httpClient: newHTTPClient("scoring-model", timeout, log),
		url:        url,
	}
}

type modelRequest struct {
	ParsedCriteria json.RawMessage `json:"parsedCriteria"`
}

type modelResponse struct {
	ScoringModel json.RawMessage `json:"scoringModel"`
	Version      int             `json:"version"`
}

// CalculateModel computes the scoring model for the given criteria. Satisfies
// modelcache.Calculator.
func (c *ScoringModelClient) CalculateModel(ctx context.Context, criteria json.RawMessage) (json.RawMessage, int, error) {
	var resp modelResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url, modelRequest{ParsedCriteria: criteria}, &resp); err != nil {
		return nil, 0, err
	}
	version := resp.Version
	if version == 0 {
		version = 1
	}
	return resp.ScoringModel, version, nil
}
