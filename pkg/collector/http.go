package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "toolscore/1.0"

// Options configures a fetcher. Zero fields take the source's defaults.
type Options struct {
	BaseURL string
	Delay   time.Duration
	Token   string
	Client  *http.Client
}

func (o Options) withDefaults(baseURL string, delay time.Duration) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Delay == 0 {
		o.Delay = delay
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return o
}

// HTTPError is a non-2xx response from a source.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func get(ctx context.Context, client *http.Client, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
	}
	return resp, nil
}

// getJSON decodes a 200 response into v. notListed status codes map to
// ErrNotListed; any other non-200 is an HTTPError.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, v any, notListed ...int) error {
	resp, err := get(ctx, client, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, notListed...); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response, notListed ...int) error {
	for _, code := range notListed {
		if resp.StatusCode == code {
			io.Copy(io.Discard, resp.Body)
			return ErrNotListed
		}
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}
