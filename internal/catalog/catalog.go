// Package catalog queries the anime catalog search endpoint and normalises
// its results into model.Release values.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"anilife_bot/internal/metrics"
	"anilife_bot/internal/model"
)

// ErrUnexpectedStatus is returned by Fetch for non-200 responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client searches the catalog over HTTP.
type Client struct {
	client   HTTPClient
	endpoint *url.URL
	timeout  time.Duration
	log      *slog.Logger
}

// New creates a Client for the given search endpoint. Every request is
// bounded by timeout.
func New(client HTTPClient, endpoint string, timeout time.Duration, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("search endpoint %q must be an absolute URL", endpoint)
	}
	return &Client{
		client:   client,
		endpoint: u,
		timeout:  timeout,
		log:      log,
	}, nil
}

// Search returns up to limit releases matching query. Failures are logged
// and reported as an empty result.
func (c *Client) Search(ctx context.Context, query string, limit int) []model.Release {
	releases, err := c.Fetch(ctx, query, limit)
	if err != nil {
		c.log.Error("catalog search", "query", query, "error", err)
		return []model.Release{}
	}
	return releases
}

// Fetch is Search with the failure reported to the caller.
func (c *Client) Fetch(ctx context.Context, query string, limit int) ([]model.Release, error) {
	releases, err := c.fetch(ctx, query, limit)
	if err != nil {
		metrics.SearchRequests.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.SearchRequests.WithLabelValues(metrics.ResultOK).Inc()
	return releases, nil
}

func (c *Client) fetch(ctx context.Context, query string, limit int) ([]model.Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(query, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "AniLifeBot/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []model.Release{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	recs := records(payload)
	releases := make([]model.Release, 0, len(recs))
	for _, rec := range recs {
		if limit > 0 && len(releases) == limit {
			break
		}
		r := Canonicalize(rec)
		r.PosterURL = c.resolve(r.PosterURL)
		releases = append(releases, r)
	}
	return releases, nil
}

func (c *Client) searchURL(query string, limit int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String()
}

// resolve makes a relative poster path absolute against the endpoint host.
func (c *Client) resolve(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return c.endpoint.ResolveReference(u).String()
}
