// Package external contains HTTP clients for the collaborators the sourcing
// pipeline depends on: query parsing, scoring-model calculation, candidate
// evaluation, and strategy execution. All are consumed as black boxes.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/logger"
)

// errorBodyLimit caps how much of an upstream error body is kept.
const errorBodyLimit = 2048

// httpClient is the shared base for the collaborator clients.
type httpClient struct {
	service string
	client  *http.Client
	logger  logger.Logger
}

func newHTTPClient(service string, timeout time.Duration, log logger.Logger) httpClient {
	return httpClient{
		service: service,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// doJSON performs a JSON request and decodes a 2xx response into out.
// Non-2xx responses become *domain.UpstreamError with a body excerpt.
func (c *httpClient) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.logger.Warn("upstream returned error status",
			logger.String("service", c.service),
			logger.String("url", url),
			logger.Int("status_code", resp.StatusCode),
			logger.Duration("duration", time.Since(start)))
		return &domain.UpstreamError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Body:       string(excerpt),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	return nil
}
