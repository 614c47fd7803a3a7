package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talentpipe/sourcing/internal/logger"
)

// Task statuses reported by the sourcing collaborator's poll endpoint.
const (
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// SourcingClient calls the collaborator that executes sourcing strategies
// against external candidate pools and exposes a poll endpoint for results.
type SourcingClient struct {
	httpClient
	baseURL string
}

// NewSourcingClient creates a sourcing client.
func NewSourcingClient(baseURL string, timeout time.Duration, log logger.Logger) *SourcingClient {
	return &SourcingClient{
		httpClient: newHTTPClient("sourcing", timeout, log),
		baseURL:    baseURL,
	}
}

type executeRequest struct {
	Strategies []json.RawMessage `json:"strategies"`
}

type executeResponse struct {
	TaskID string `json:"task_id"`
}

// TaskCandidate is one raw result row from a completed sourcing task.
type TaskCandidate struct {
	CandidateID string          `json:"candidate_id"`
	Profile     json.RawMessage `json:"profile"`
}

// TaskResult is the poll endpoint response.
type TaskResult struct {
	Status     string          `json:"status"`
	Candidates []TaskCandidate `json:"candidates"`
	Error      string          `json:"error"`
}

// ExecuteStrategy submits one strategy payload and returns the accepted
// external task id.
func (c *SourcingClient) ExecuteStrategy(ctx context.Context, payload json.RawMessage) (string, error) {
	var resp executeResponse
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/execute",
		executeRequest{Strategies: []json.RawMessage{payload}}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("sourcing accepted strategy without task id")
	}
	return resp.TaskID, nil
}

// PollResults fetches the current state of an external sourcing task.
func (c *SourcingClient) PollResults(ctx context.Context, taskID string) (*TaskResult, error) {
	var result TaskResult
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/results/"+taskID, nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
