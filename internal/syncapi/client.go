package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout     = 30 * time.Second
	uploadTimeout      = 2 * time.Minute
	maxRetries         = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2
)

// TokenProvider supplies the bearer token for each request. Returning an
// empty token is allowed; the server will answer 401 and the orchestrator
// handles it.
type TokenProvider func() (string, error)

// Client talks to the remote sync endpoints.
type Client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
}

func NewClient(baseURL string, token TokenProvider) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Ping checks server reachability. It is unauthenticated and never retried;
// the reachability monitor calls it on its own schedule.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PushBatch sends one table's dirty records as a single request and returns
// the server's identity assignments and acknowledgements. Retries on rate
// limits and 5xx; the server deduplicates creates by local_id, so a retried
// batch cannot produce duplicate remote records.
func (c *Client) PushBatch(ctx context.Context, table string, changes []Change) (*PushResponse, error) {
	body, err := json.Marshal(PushRequest{Changes: changes})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push batch: %w", err)
	}

	var resp *PushResponse
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, lastErr = c.doPush(ctx, table, body)
		if lastErr == nil {
			return resp, nil
		}
		if !isRetryableError(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doPush(ctx context.Context, table string, body []byte) (*PushResponse, error) {
	endpoint := fmt.Sprintf("%s/api/sync/push/%s", c.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var pushResp PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	return &pushResp, nil
}

// Pull requests all server-side changes strictly newer than since. A nil
// since asks for everything.
func (c *Client) Pull(ctx context.Context, since *time.Time) (*PullResponse, error) {
	u, err := url.Parse(c.baseURL + "/api/sync/pull")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if since != nil {
		q := u.Query()
		q.Set("since", since.Format(time.RFC3339Nano))
		u.RawQuery = q.Encode()
	}

	var resp *PullResponse
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, lastErr = c.doPull(ctx, u.String())
		if lastErr == nil {
			return resp, nil
		}
		if !isRetryableError(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doPull(ctx context.Context, endpoint string) (*PullResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var pullResp PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&pullResp); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return &pullResp, nil
}

// UploadCover uploads a staged cover image for a local record and returns the
// durable remote URL.
func (c *Client) UploadCover(ctx context.Context, localID uint, cover io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/api/sync/covers/%d", c.baseURL, localID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, cover)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if err := c.authorize(req); err != nil {
		return "", err
	}

	uploadClient := &http.Client{Timeout: uploadTimeout}
	resp, err := uploadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var uploadResp UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploadResp.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}
	return uploadResp.URL, nil
}

func (c *Client) authorize(req *http.Request) error {
	token, err := c.token()
	if err != nil {
		return fmt.Errorf("failed to resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func calculateRetryDelay(attempt int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= time.Duration(retryBackoffFactor)
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func isRetryableError(err error) bool {
	if err == ErrRateLimited {
		return true
	}
	if _, ok := err.(*ServerError); ok {
		return true
	}
	return false
}
