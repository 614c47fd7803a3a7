package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/talentpipe/sourcing/internal/logger"
)

const publishTimeout = 10 * time.Second

// Publisher enqueues a job for delivery to a service endpoint after an
// optional delay. Delivery is at least once; the payload is delivered as the
// POST body of a signed callback to path under the configured callback base.
type Publisher interface {
	Publish(ctx context.Context, path string, body any, delay time.Duration) error
}

// HTTPPublisher publishes jobs to the external queue service.
type HTTPPublisher struct {
	queueURL     string
	token        string
	callbackBase string
	client       *http.Client
	logger       logger.Logger
}

// NewHTTPPublisher creates a publisher for the queue service at queueURL.
// callbackBase is this service's externally reachable base URL.
func NewHTTPPublisher(queueURL, token, callbackBase string, log logger.Logger) *HTTPPublisher {
	return &HTTPPublisher{
		queueURL:     queueURL,
		token:        token,
		callbackBase: callbackBase,
		client:       &http.Client{Timeout: publishTimeout},
		logger:       log,
	}
}

// Publish enqueues one job. The queue delivers the body to callbackBase+path
// after the delay elapses, signing the delivery with its active key.
func (p *HTTPPublisher) Publish(ctx context.Context, path string, body any, delay time.Duration) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode job body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.queueURL+"/publish", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("X-Forward-To", p.callbackBase+path)
	if delay > 0 {
		req.Header.Set("X-Delay-Seconds", strconv.Itoa(int(delay/time.Second)))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("queue returned status %d: %s", resp.StatusCode, excerpt)
	}

	p.logger.Debug("job published",
		logger.String("path", path),
		logger.Duration("delay", delay))
	return nil
}
