// Package rmsclient posts renewal events to the revenue management system.
package rmsclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/target/renewal-risk-api/internal/core"
	"github.com/target/renewal-risk-api/internal/domain/model"
)

// Header names sent with every event.
const (
	HeaderEventID   = "X-Webhook-Event-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Config configures the RMS client.
type Config struct {
	// Timeout bounds a call when the caller's context has no deadline.
	Timeout time.Duration
	Client  *http.Client
}

// Client implements core.RMSClient over HTTP.
type Client struct {
	client *http.Client
}

var _ core.RMSClient = (*Client)(nil)

// New builds a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{client: hc}
}

// Send makes a single POST. Any 2xx is success; everything else, including a transport
// failure or the context deadline, is reported in the result rather than as an error.
func (c *Client) Send(ctx context.Context, r model.RMSRequest) model.AttemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return model.AttemptResult{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, r.EventID)
	req.Header.Set(HeaderTimestamp, r.Timestamp.UTC().Format(model.TimestampLayout))

	resp, err := c.client.Do(req)
	if err != nil {
		return model.AttemptResult{Err: err}
	}

	body, readErr := readResponseBody(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return model.AttemptResult{
			StatusCode: resp.StatusCode,
			Err:        errors.Join(fmt.Errorf("read response body: %w", readErr), closeErr),
		}
	}
	return model.AttemptResult{StatusCode: resp.StatusCode, Body: body}
}

// readResponseBody reads at most MaxResponseTextBytes and drains the rest so the
// connection can be reused.
func readResponseBody(body io.Reader) (string, error) {
	limited := io.LimitReader(body, model.MaxResponseTextBytes+1)
	data, readErr := io.ReadAll(limited)
	if len(data) > model.MaxResponseTextBytes {
		data = data[:model.MaxResponseTextBytes]
		if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
			readErr = drainErr
		}
	}
	return model.TruncateText(string(data), model.MaxResponseTextBytes), readErr
}
