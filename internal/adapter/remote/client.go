// Package remote reads grids from an HTTP dataset service.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
)

// Client implements domain.GridSource against a dataset service exposing
// GET /grids and GET /grids/count filtered by start, end and bbox.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a dataset client. Requests share a circuit breaker that
// opens after five consecutive failures.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		breaker:    newBreaker(logger),
		logger:     logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dataset",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

func (c *Client) Query(ctx context.Context, window domain.TimeWindow, region domain.Region) (domain.RasterSeries, error) {
	var payload gridsResponse
	if err := c.get(ctx, "query", "/grids", window, region, &payload); err != nil {
		return nil, err
	}

	series := make(domain.RasterSeries, 0, len(payload.Grids))
	for i, g := range payload.Grids {
		grid, err := domain.NewRasterGrid(g.Timestamp, g.Extent, g.Bands...)
		if err != nil {
			return nil, fmt.Errorf("decode grid %d: %w", i, err)
		}
		series = append(series, grid)
	}
	// The service is trusted for the window but not for ordering or bounds.
	series = series.Filter(window, region)
	series.SortByTime()

	c.logger.Debug("remote query", "window", window.String(), "region", region.String(), "grids", len(series))
	return series, nil
}

func (c *Client) Count(ctx context.Context, window domain.TimeWindow, region domain.Region) (int, error) {
	var payload countResponse
	if err := c.get(ctx, "count", "/grids/count", window, region, &payload); err != nil {
		return 0, err
	}
	if payload.Count < 0 {
		return 0, fmt.Errorf("decode count: negative count %d", payload.Count)
	}
	return payload.Count, nil
}

func (c *Client) get(ctx context.Context, op, path string, window domain.TimeWindow, region domain.Region, out any) error {
	params := url.Values{
		"start": {window.Start.Format(time.RFC3339)},
		"end":   {window.End.Format(time.RFC3339)},
		"bbox":  {region.String()},
	}
	fullURL := c.baseURL + path + "?" + params.Encode()

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, fullURL)
	})
	if err != nil {
		return domain.SourceError("remote "+op, err)
	}

	data, ok := body.([]byte)
	if !ok {
		return fmt.Errorf("remote %s: unexpected result type %T", op, body)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("remote %s: decode response: %w", op, err)
	}
	return nil
}

var errServer = errors.New("dataset service error")

func (c *Client) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", errServer, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// Dataset service response types.

type gridsResponse struct {
	Grids []domain.RasterGrid `json:"grids"`
}

type countResponse struct {
	Count int `json:"count"`
}
