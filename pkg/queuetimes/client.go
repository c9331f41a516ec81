// Package queuetimes provides a client for the queue-times.com park data API.
package queuetimes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/resilience"
)

// Client defines the upstream park-data operations used by the collector.
type Client interface {
	// Parks returns every park known to the API, grouped by operator.
	Parks(ctx context.Context) ([]ParkGroup, error)
	// QueueTimes returns the current per-ride readings for one park.
	QueueTimes(ctx context.Context, parkID int64) (*QueueResponse, error)
}

// ParkGroup is an operator (company) and its parks.
type ParkGroup struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Parks []Park `json:"parks"`
}

// Park is one park as reported by the API. Coordinates arrive as strings.
type Park struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Timezone  string `json:"timezone"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Coords parses the park's coordinates. ok is false when either is absent
// or malformed.
func (p Park) Coords() (lat, lon float64, ok bool) {
	lat, latErr := strconv.ParseFloat(p.Latitude, 64)
	lon, lonErr := strconv.ParseFloat(p.Longitude, 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// QueueResponse is the per-park queue payload. Rides appear either inside
// lands or at the top level depending on the park.
type QueueResponse struct {
	Lands []Land `json:"lands"`
	Rides []Ride `json:"rides"`
}

// Land groups rides within a park.
type Land struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Rides []Ride `json:"rides"`
}

// Ride is one attraction reading. IsOpen and WaitTime are pointers because
// the API omits them for unreported attractions; the status computer
// fail-closes on missing data.
type Ride struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	IsOpen      *bool      `json:"is_open"`
	WaitTime    *int       `json:"wait_time"`
	LastUpdated *time.Time `json:"last_updated"`
}

// AllRides returns the park's rides from both lands and the top level.
func (q *QueueResponse) AllRides() []Ride {
	rides := make([]Ride, 0, len(q.Rides))
	for _, land := range q.Lands {
		rides = append(rides, land.Rides...)
	}
	rides = append(rides, q.Rides...)
	return rides
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a queue-times API client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("queuetimes", "get")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Parks(ctx context.Context) ([]ParkGroup, error) {
	body, err := c.get(ctx, "/en-US/parks.json")
	if err != nil {
		return nil, err
	}

	var groups []ParkGroup
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, eris.Wrap(err, "queuetimes: decode parks response")
	}
	return groups, nil
}

func (c *httpClient) QueueTimes(ctx context.Context, parkID int64) (*QueueResponse, error) {
	body, err := c.get(ctx, fmt.Sprintf("/en-US/parks/%d/queue_times.json", parkID))
	if err != nil {
		return nil, err
	}

	var resp QueueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "queuetimes: decode queue response for park %d", parkID)
	}
	return &resp, nil
}

// get performs a GET with bounded retries on transient failures.
func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrapf(err, "queuetimes: create request for %s", path)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "queuetimes: GET %s", path), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "queuetimes: read response for %s", path)
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("queuetimes: %s returned status %d", path, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return body, nil
	})
}
