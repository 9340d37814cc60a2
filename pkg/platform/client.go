package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type HTTPClient struct {
	Client  *http.Client
	Retries int
	Timeout time.Duration
	Logger  zerolog.Logger
	Backoff time.Duration
}

func NewHTTPClient(retries int, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		Retries: retries,
		Timeout: timeout,
		Logger:  zerolog.Nop(),
		Backoff: 200 * time.Millisecond,
	}
}

// WithLogger sets the logger used for retry warnings.
func (c *HTTPClient) WithLogger(l zerolog.Logger) *HTTPClient {
	c.Logger = l
	return c
}

// Get fetches url and returns the body of a 2xx response.
// 5xx responses and transport errors are retried with exponential backoff.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return body, nil
}

// PostJSON posts body and returns the last response, even a 5xx one.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, url, body, "application/json")
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	var resp *http.Response
	var err error

	for i := 0; i <= c.Retries; i++ {
		req, rErr := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if rErr != nil {
			return nil, rErr
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err = c.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if i < c.Retries {
			if resp != nil {
				resp.Body.Close()
			}
			c.Logger.Warn().Str("url", url).Int("attempt", i+1).Err(err).Msg("HTTP request failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<i) * c.Backoff):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", c.Retries, err)
	}
	return resp, nil
}
