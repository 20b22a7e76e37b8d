// Package policeuk is the client for the data.police.uk API. Every call goes
// through one shared retry-with-backoff wrapper so the retry contract is
// identical across endpoints.
package policeuk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable marks an upstream call that failed after exhausting retries
// (or failed permanently with a client error). Callers must treat it as
// "retry later", not as an empty result.
var ErrUnavailable = errors.New("police api unavailable")

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 60 * time.Second
	backoffBase        = 500 * time.Millisecond
)

// Client talks to the Police UK API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	timeout     time.Duration
}

// NewClient creates a client for the given base URL. maxAttempts and timeout
// fall back to the documented defaults (3 attempts, 60s per attempt) when
// non-positive.
func NewClient(baseURL string, maxAttempts int, timeout time.Duration) *Client {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		maxAttempts: maxAttempts,
		timeout:     timeout,
	}
}

// Close releases idle upstream connections. Called when a sync run finishes.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// getJSON performs one GET with the shared retry contract: up to maxAttempts
// tries, exponential backoff starting at 0.5s between attempts, 5xx/timeout/
// transport errors retried, 4xx permanent. Exhaustion surfaces as
// ErrUnavailable.
func (c *Client) getJSON(ctx context.Context, op, path string, decode func([]byte) error) error {
	log := logger.L()
	url := c.baseURL + path

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Timeouts and transport failures are retryable.
			log.Warn().Str("op", op).Err(err).Msg("police api request failed")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			err := fmt.Errorf("police api status %d", resp.StatusCode)
			log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("police api server error")
			return err
		}
		if resp.StatusCode >= 400 {
			// Client errors will not improve on retry.
			return backoff.Permanent(fmt.Errorf("police api status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return decode(body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx))
	if err != nil {
		log.Error().Str("op", op).Str("url", url).Err(err).Msg("police api call gave up")
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return nil
}

// ListForces returns all police forces.
func (c *Client) ListForces(ctx context.Context) ([]Force, error) {
	var forces []Force
	err := c.getJSON(ctx, "list forces", "/forces", func(body []byte) error {
		return json.Unmarshal(body, &forces)
	})
	if err != nil {
		return nil, err
	}
	return forces, nil
}

// ListNeighbourhoods returns the neighbourhoods of one force.
func (c *Client) ListNeighbourhoods(ctx context.Context, forceID string) ([]NeighbourhoodRef, error) {
	var refs []NeighbourhoodRef
	path := fmt.Sprintf("/%s/neighbourhoods", forceID)
	err := c.getJSON(ctx, "list neighbourhoods", path, func(body []byte) error {
		return json.Unmarshal(body, &refs)
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// GetBoundary returns the boundary polygon points for one neighbourhood.
// An empty slice is a legitimate "no boundary data" answer, distinct from an
// ErrUnavailable failure.
func (c *Client) GetBoundary(ctx context.Context, forceID, neighbourhoodID string) ([]BoundaryPoint, error) {
	var wire []boundaryPointWire
	path := fmt.Sprintf("/%s/%s/boundary", forceID, neighbourhoodID)
	err := c.getJSON(ctx, "get boundary", path, func(body []byte) error {
		return json.Unmarshal(body, &wire)
	})
	if err != nil {
		return nil, err
	}
	points := make([]BoundaryPoint, 0, len(wire))
	for _, w := range wire {
		if p, ok := w.parse(); ok {
			points = append(points, p)
		}
	}
	return points, nil
}

// GetNeighbourhoodDetails returns the per-neighbourhood detail payload.
func (c *Client) GetNeighbourhoodDetails(ctx context.Context, forceID, neighbourhoodID string) (*NeighbourhoodDetails, error) {
	var details NeighbourhoodDetails
	path := fmt.Sprintf("/%s/%s", forceID, neighbourhoodID)
	err := c.getJSON(ctx, "get neighbourhood details", path, func(body []byte) error {
		return json.Unmarshal(body, &details)
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// GetEvents returns the public events for one neighbourhood.
func (c *Client) GetEvents(ctx context.Context, forceID, neighbourhoodID string) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/%s/%s/events", forceID, neighbourhoodID)
	err := c.getJSON(ctx, "get events", path, func(body []byte) error {
		return json.Unmarshal(body, &events)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
