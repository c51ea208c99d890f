// Package delivery is a client for the content platform's Delivery API: single
// items with their linked items, and the paginated items feed of a language.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/content"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/resilience"
)

const (
	continuationHeader = "X-Continuation"
	maxFeedPages       = 10000
	maxErrorBody       = 4 << 10
)

// ItemResponse is the body of GET /{project}/items/{codename}.
type ItemResponse struct {
	Item           content.Item             `json:"item"`
	ModularContent map[string]*content.Item `json:"modular_content"`
}

// FeedResponse is one page of GET /{project}/items-feed.
type FeedResponse struct {
	Items          []*content.Item          `json:"items"`
	ModularContent map[string]*content.Item `json:"modular_content"`
}

// Client talks to the Delivery API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *resilience.CircuitBreaker
	logger     *slog.Logger
}

// New creates a Client. apiKey enables secure access and may be empty.
func New(cfg config.KontentConfig, apiKey string, m *metrics.Metrics) *Client {
	breaker := resilience.NewCircuitBreaker("kontent-delivery", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerReset,
		IsFailure: func(err error) bool {
			return !errors.Is(err, apperrors.ErrItemNotFound)
		},
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return &Client{
		baseURL:    strings.TrimRight(cfg.DeliveryURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    cfg.RequestTimeout,
		breaker:    breaker,
		logger:     slog.Default().With("component", "delivery-client"),
	}
}

// Item fetches one item with linked items resolved to the given depth.
func (c *Client) Item(ctx context.Context, projectID, codename, language string, depth int) (*ItemResponse, error) {
	q := url.Values{}
	q.Set("language", language)
	q.Set("depth", strconv.Itoa(depth))
	endpoint := fmt.Sprintf("%s/%s/items/%s?%s",
		c.baseURL, url.PathEscape(projectID), url.PathEscape(codename), q.Encode())

	resp, _, err := getJSON[ItemResponse](ctx, c, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("fetching item %s (%s): %w", codename, language, err)
	}
	return &resp, nil
}

// ItemsFeed fetches every item of a language, following continuation tokens,
// and returns all pages merged into one response. Items served through
// language fallback are excluded.
func (c *Client) ItemsFeed(ctx context.Context, projectID, language string) (*FeedResponse, error) {
	q := url.Values{}
	q.Set("language", language)
	q.Set("system.language", language)
	endpoint := fmt.Sprintf("%s/%s/items-feed?%s", c.baseURL, url.PathEscape(projectID), q.Encode())

	merged := &FeedResponse{ModularContent: make(map[string]*content.Item)}
	continuation := ""
	for page := 0; page < maxFeedPages; page++ {
		resp, next, err := getJSON[FeedResponse](ctx, c, endpoint, continuation)
		if err != nil {
			return nil, fmt.Errorf("fetching items feed for %s page %d: %w", language, page, err)
		}
		merged.Items = append(merged.Items, resp.Items...)
		for codename, it := range resp.ModularContent {
			merged.ModularContent[codename] = it
		}
		c.logger.Debug("items feed page fetched",
			"project_id", projectID,
			"language", language,
			"page", page,
			"items", len(resp.Items),
		)
		if next == "" {
			return merged, nil
		}
		continuation = next
	}
	return nil, fmt.Errorf("items feed for %s exceeded %d pages: %w", language, maxFeedPages, apperrors.ErrUpstream)
}

// getJSON performs one GET through the breaker and per-call timeout and
// returns the decoded body with the continuation header.
func getJSON[T any](ctx context.Context, c *Client, endpoint, continuation string) (T, string, error) {
	type page struct {
		body T
		next string
	}
	var got page
	err := c.breaker.Execute(func() error {
		var err error
		got, err = resilience.WithTimeoutValue(ctx, c.timeout, "delivery request", func(ctx context.Context) (page, error) {
			var p page
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return p, fmt.Errorf("building request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}
			if continuation != "" {
				req.Header.Set(continuationHeader, continuation)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return p, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
				return p, apperrors.ErrItemNotFound
			case resp.StatusCode < 200 || resp.StatusCode > 299:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				return p, fmt.Errorf("%w: delivery api returned %d: %s",
					apperrors.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
			}

			if err := json.NewDecoder(resp.Body).Decode(&p.body); err != nil {
				return p, fmt.Errorf("%w: decoding delivery response: %v", apperrors.ErrUpstream, err)
			}
			p.next = resp.Header.Get(continuationHeader)
			return p, nil
		})
		return err
	})
	if err != nil {
		var zero T
		return zero, "", err
	}
	return got.body, got.next, nil
}
