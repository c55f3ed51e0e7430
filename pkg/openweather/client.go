// Package openweather looks up current weather conditions from the
// OpenWeatherMap API.
package openweather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/solalog/solalog-server/internal/resilience"
)

// DefaultBaseURL is the public OpenWeatherMap endpoint.
const DefaultBaseURL = "https://api.openweathermap.org"

// Conditions is the subset of a current-weather response the server uses.
type Conditions struct {
	// Code is the OpenWeatherMap condition id, e.g. 800 for clear sky.
	Code        int
	Description string
	// PlaceName is the upstream display name for the location; may be empty.
	PlaceName string
}

type currentResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at another host, such as a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy overrides the retry policy for transient failures.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithCircuitBreaker overrides the circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// Client calls the current-weather endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryPolicy
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a Client. Defaults: 5 second request timeout, 10
// requests per second, DefaultRetryPolicy and a breaker opening after 5
// consecutive failures for 30 seconds.
func NewClient(apiKey string, opts ...Option) *Client {
	retry := resilience.DefaultRetryPolicy()
	retry.OnRetry = resilience.LogRetry("openweather")
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      retry,
		breaker:    resilience.NewCircuitBreaker("openweather", 5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the current conditions at a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Conditions, error) {
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*Conditions, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Conditions, error) {
			return c.fetch(ctx, lat, lon)
		})
	})
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*Conditions, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openweather: rate limit")
	}

	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"appid": {c.apiKey},
	}
	reqURL := c.baseURL + "/data/2.5/weather?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openweather: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openweather: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("openweather: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "openweather: read body")
	}

	var cur currentResponse
	if err := json.Unmarshal(body, &cur); err != nil {
		return nil, eris.Wrap(err, "openweather: parse response")
	}
	if len(cur.Weather) == 0 {
		return nil, eris.New("openweather: response has no weather entries")
	}

	return &Conditions{
		Code:        cur.Weather[0].ID,
		Description: cur.Weather[0].Description,
		PlaceName:   cur.Name,
	}, nil
}
