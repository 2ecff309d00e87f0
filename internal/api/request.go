package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Code       int           // Service error code from the body, if any
	Message    string        // Body message, or the HTTP status text
	RetryAfter time.Duration // From Retry-After or the body's retry_after
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// errorBody is the service's JSON error envelope.
type errorBody struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // Seconds
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       body,
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}
		apiErr.Code = eb.Code
		apiErr.RetryAfter = seconds(eb.RetryAfter)
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if s, err := strconv.ParseFloat(h, 64); err == nil {
			apiErr.RetryAfter = max(apiErr.RetryAfter, seconds(s))
		}
	}
	return apiErr
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.signer != nil {
		headers, err := c.signer.SignRequest(method, path)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// doRequest performs a single request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp, body)
	}
	return body, nil
}

// doWithRetry retries 5xx and 429 responses with jittered exponential
// backoff. A server-supplied retry delay is honored when it is longer.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff
	var hint time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * [0.5, 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			wait = max(wait, hint)
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"wait", wait,
				"path", path,
			)

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		hint = apiErr.RetryAfter
		if apiErr.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by gateway api",
				"path", path,
				"retry_after", apiErr.RetryAfter,
			)
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
