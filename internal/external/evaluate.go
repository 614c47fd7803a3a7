package external

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/talentpipe/sourcing/internal/logger"
)

// EvaluateClient calls the collaborator that scores one candidate profile
// against a scoring model.
type EvaluateClient struct {
	httpClient
	url string
}

// NewEvaluateClient creates an evaluate client.
func NewEvaluateClient(url string, timeout time.Duration, log logger.Logger) *EvaluateClient {
	return &EvaluateClient{
		httpClient: newHTTPClient("evaluate", timeout, log),
		url:        url,
	}
}

type evaluateRequest struct {
	CandidateProfile json.RawMessage `json:"candidate_profile"`
	ScoringModel     json.RawMessage `json:"scoring_model"`
	CandidateID      string          `json:"candidate_id"`
}

// EvaluateResult is the upstream evaluation outcome. FinalScore is nil when
// the response carried no score, which callers treat as an attempt failure.
type EvaluateResult struct {
	FinalScore *float64        `json:"final_score"`
	Raw        json.RawMessage `json:"-"`
}

// Evaluate scores one candidate. The raw response body is preserved on the
// result so the caller can persist it alongside the score.
func (c *EvaluateClient) Evaluate(ctx context.Context, profile, model json.RawMessage, candidateID string) (*EvaluateResult, error) {
	var raw json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, c.url, evaluateRequest{
		CandidateProfile: profile,
		ScoringModel:     model,
		CandidateID:      candidateID,
	}, &raw)
	if err != nil {
		return nil, err
	}

	var result EvaluateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	result.Raw = raw
	return &result, nil
}
