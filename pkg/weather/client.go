// Package weather provides a read-only forecast client. Conditions are
// attached to park snapshots as context; failures never block a cycle.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/resilience"
)

// Client fetches current conditions for a coordinate.
type Client interface {
	Current(ctx context.Context, lat, lon float64) (*Conditions, error)
}

// Conditions is the subset of the forecast payload the pipeline stores.
type Conditions struct {
	TempC float64 `json:"temperature"`
	Code  string  `json:"weathercode"`
}

type currentWeatherResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// NewClient creates a forecast client against an open-meteo compatible API.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &httpClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 250 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Current(ctx context.Context, lat, lon float64) (*Conditions, error) {
	path := fmt.Sprintf("/v1/forecast?latitude=%.4f&longitude=%.4f&current_weather=true", lat, lon)

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, eris.Wrap(err, "weather: create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "weather: GET forecast"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "weather: read response")
		}
		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("weather: forecast returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed currentWeatherResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "weather: decode forecast")
	}

	return &Conditions{
		TempC: parsed.CurrentWeather.Temperature,
		Code:  fmt.Sprintf("%d", parsed.CurrentWeather.WeatherCode),
	}, nil
}
