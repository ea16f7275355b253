package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-outlook-service/internal/models"
	"github.com/kjstillabower/climate-outlook-service/internal/observability"
	"github.com/kjstillabower/climate-outlook-service/internal/window"
)

// Provider fetches raw meteorological observations for a resolved sampling
// window. Implementations own retries; callers treat any returned error as
// a terminal upstream failure.
type Provider interface {
	FetchWindow(ctx context.Context, lat, lon float64, win window.Window) (Observations, error)
}

// Observations is one provider fetch: hourly raw observations plus the
// optional per-day sunrise/sunset windows, keyed by YYYY-MM-DD.
type Observations struct {
	Raw []models.RawObservation
	Sun map[string]models.SunWindow
}

var (
	ErrInvalidRequest  = errors.New("invalid provider request")
	ErrOutOfRange      = errors.New("requested range outside provider coverage")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
)

// OpenMeteoClient talks to an Open-Meteo-compatible provider: the forecast
// endpoint for near-term windows and the archive endpoint for historical
// day-of-year windows.
type OpenMeteoClient struct {
	forecastURL    string
	archiveURL     string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenMeteoClient creates a client with default retry parameters.
func NewOpenMeteoClient(forecastURL, archiveURL string, timeout time.Duration) (*OpenMeteoClient, error) {
	return NewOpenMeteoClientWithRetry(forecastURL, archiveURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenMeteoClientWithRetry creates a client with explicit retry parameters.
func NewOpenMeteoClientWithRetry(forecastURL, archiveURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenMeteoClient, error) {
	if forecastURL == "" || archiveURL == "" {
		return nil, fmt.Errorf("%w: forecast and archive URLs are required", ErrInvalidRequest)
	}
	return &OpenMeteoClient{
		forecastURL:    forecastURL,
		archiveURL:     archiveURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps provider calls in the given breaker. Call once
// during startup, before serving traffic.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// Hourly variables requested from both endpoints. The archive endpoint
// omits uv_index; the missing array decodes as nil and stays optional.
const hourlyVariables = "temperature_2m,relative_humidity_2m,precipitation,rain,snowfall,wind_speed_10m,wind_gusts_10m,cloud_cover,uv_index"

type openMeteoResponse struct {
	Hourly struct {
		Time               []string   `json:"time"`
		Temperature2M      []*float64 `json:"temperature_2m"`
		RelativeHumidity2M []*float64 `json:"relative_humidity_2m"`
		Precipitation      []*float64 `json:"precipitation"`
		Rain               []*float64 `json:"rain"`
		Snowfall           []*float64 `json:"snowfall"`
		WindSpeed10M       []*float64 `json:"wind_speed_10m"`
		WindGusts10M       []*float64 `json:"wind_gusts_10m"`
		CloudCover         []*float64 `json:"cloud_cover"`
		UVIndex            []*float64 `json:"uv_index"`
	} `json:"hourly"`
	Daily struct {
		Time    []string `json:"time"`
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

// FetchWindow fetches hourly observations and daily sun windows for the
// given sampling window, retrying retryable failures with exponential
// backoff and jitter.
func (c *OpenMeteoClient) FetchWindow(ctx context.Context, lat, lon float64, win window.Window) (Observations, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return Observations{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		var result Observations
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, func() error {
				result, err = c.callAPI(ctx, lat, lon, win)
				return err
			})
		} else {
			result, err = c.callAPI(ctx, lat, lon, win)
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return Observations{}, err
		}
	}

	return Observations{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, lat, lon float64, win window.Window) (Observations, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := "forecast"
	if win.UsesHistoricalYears {
		endpoint = "archive"
	}

	req, err := c.buildRequest(reqCtx, lat, lon, win)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return Observations{}, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderCallDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Observations{}, fmt.Errorf("request timeout: %w", err)
		}
		return Observations{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderCallDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return Observations{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Observations{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Observations{}, fmt.Errorf("parse response: %w", err)
	}

	return c.mapResponse(apiResp)
}

func (c *OpenMeteoClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64, win window.Window) (*http.Request, error) {
	rawURL := c.forecastURL
	if win.UsesHistoricalYears {
		rawURL = c.archiveURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("start_date", win.Start.Format("2006-01-02"))
	params.Set("end_date", win.End.Format("2006-01-02"))
	params.Set("hourly", hourlyVariables)
	params.Set("daily", "sunrise,sunset")
	params.Set("timezone", "auto")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenMeteoClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusBadRequest:
		// The provider answers 400 both for malformed parameters and for
		// dates outside its coverage; the body's reason distinguishes them.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(strings.ToLower(string(body)), "out of range") {
			return fmt.Errorf("%w", ErrOutOfRange)
		}
		return fmt.Errorf("%w: HTTP 400", ErrInvalidRequest)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", ErrInvalidRequest)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// Hourly timestamps and daily sunrise/sunset use this layout in the
// provider's local-time responses.
const providerTimeLayout = "2006-01-02T15:04"

func (c *OpenMeteoClient) mapResponse(apiResp openMeteoResponse) (Observations, error) {
	h := apiResp.Hourly
	raw := make([]models.RawObservation, 0, len(h.Time))
	for i, ts := range h.Time {
		t, err := time.Parse(providerTimeLayout, ts)
		if err != nil {
			return Observations{}, fmt.Errorf("parse hourly timestamp %q: %w", ts, err)
		}
		raw = append(raw, models.RawObservation{
			Timestamp:     t,
			Temperature:   at(h.Temperature2M, i),
			Humidity:      at(h.RelativeHumidity2M, i),
			Precipitation: at(h.Precipitation, i),
			Rain:          at(h.Rain, i),
			Snow:          at(h.Snowfall, i),
			WindSpeed:     at(h.WindSpeed10M, i),
			WindGusts:     at(h.WindGusts10M, i),
			CloudCover:    at(h.CloudCover, i),
			UVIndex:       at(h.UVIndex, i),
		})
	}

	sun := make(map[string]models.SunWindow, len(apiResp.Daily.Time))
	for i, ds := range apiResp.Daily.Time {
		day, err := time.Parse("2006-01-02", ds)
		if err != nil {
			continue
		}
		if i >= len(apiResp.Daily.Sunrise) || i >= len(apiResp.Daily.Sunset) {
			continue
		}
		sunrise, err1 := time.Parse(providerTimeLayout, apiResp.Daily.Sunrise[i])
		sunset, err2 := time.Parse(providerTimeLayout, apiResp.Daily.Sunset[i])
		if err1 != nil || err2 != nil {
			continue
		}
		sun[ds] = models.SunWindow{Date: day, Sunrise: sunrise, Sunset: sunset}
	}

	return Observations{Raw: raw, Sun: sun}, nil
}

// at returns the i-th element of a nullable column, or nil when the
// provider omitted the column or truncated it short of the time axis.
func at(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
