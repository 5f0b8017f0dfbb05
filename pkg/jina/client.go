// Package jina provides a client for the Jina AI reader and search API.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/resilience"
)

// Client defines the Jina AI operations used by search and crawl.
type Client interface {
	// Read fetches a URL through the Jina Reader and returns its text.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search through Jina Search.
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// ReadResponse is the parsed Jina Reader response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the page content.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the parsed Jina Search response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets the reader base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithSearchBaseURL sets the search base URL.
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
	retry         resilience.RetryConfig
}

// NewClient creates a new Jina AI client.
func NewClient(apiKey string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Second
	retry.OnRetry = resilience.RetryLogger("jina", "request")

	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues a GET with retries on transient failures. Non-2xx statuses
// other than the ones listed in accept are returned as errors.
func (c *httpClient) get(ctx context.Context, reqURL string, headers map[string]string, accept ...int) ([]byte, int, error) {
	type reply struct {
		body   []byte
		status int
	}
	r, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (reply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return reply{}, eris.Wrap(err, "jina: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return reply{}, err
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return reply{}, eris.Wrap(err, "jina: read response body")
		}
		if resp.StatusCode == http.StatusOK {
			return reply{body, resp.StatusCode}, nil
		}
		for _, code := range accept {
			if resp.StatusCode == code {
				return reply{body, resp.StatusCode}, nil
			}
		}
		return reply{}, resilience.HTTPStatusError("jina", resp.StatusCode, string(body))
	})
	return r.body, r.status, err
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	body, _, err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, targetURL), map[string]string{
		"X-Return-Format": "text",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jina: read %s", targetURL)
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.PathEscape(query))

	body, status, err := c.get(ctx, reqURL, nil, http.StatusUnprocessableEntity)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}

	// Jina answers 422 when a query has no results.
	if status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: status}, nil
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &result, nil
}
