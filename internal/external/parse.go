package external

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/talentpipe/sourcing/internal/logger"
)

// ParseClient calls the NLP service that turns a raw hiring query into
// structured criteria.
type ParseClient struct {
	httpClient
	url string
}

// NewParseClient creates a parse client.
func NewParseClient(url string, timeout time.Duration, log logger.Logger) *ParseClient {
	return &ParseClient{
		httpClient: newHTTPClient("parse", timeout, log),
		url:        url,
	}
}

type parseRequest struct {
	Message string `json:"message"`
}

type parseResponse struct {
	ParsedCriteria json.RawMessage `json:"parsedCriteria"`
}

// ParseQuery submits the raw query text and returns the parsed-criteria blob.
func (c *ParseClient) ParseQuery(ctx context.Context, query string) (json.RawMessage, error) {
	var resp parseResponse
	if err := c.doJSON(ctx, http.MethodPost, c.url, parseRequest{Message: query}, &resp); err != nil {
		return nil, err
	}
	return resp.ParsedCriteria, nil
}
