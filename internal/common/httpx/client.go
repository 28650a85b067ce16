// internal/common/httpx/client.go
package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// ErrRetriesExhausted wraps the last transport error after all attempts failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Client wraps http.Client with bounded exponential-backoff retries. Only
// transport errors and 5xx responses are retried; the caller owns the context
// deadline, which always wins over remaining attempts.
type Client struct {
	httpClient   *http.Client
	maxRetries   int
	initialDelay time.Duration
}

func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:   maxRetries,
		initialDelay: 100 * time.Millisecond,
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoWithRetry issues the request up to maxRetries+1 times. The request body,
// if any, must be supplied via bodyBytes so it can be replayed.
func (c *Client) DoWithRetry(ctx context.Context, method, url string, bodyBytes []byte, header http.Header) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		resp, lastErr = c.httpClient.Do(req)

		// Context expiry during the request means the caller's deadline won;
		// surface it as-is rather than burning the remaining attempts.
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}

		if lastErr == nil {
			if resp.StatusCode < 500 {
				return resp, nil
			}
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			resp = nil
		}
	}

	return nil, errors.Join(ErrRetriesExhausted, lastErr)
}

// StatusError reports a non-success HTTP status that exhausted retries.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "status " + http.StatusText(e.StatusCode)
}
