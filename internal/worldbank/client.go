// Package worldbank fetches country indicator series from the World Bank API v2.
package worldbank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/models"
)

// Client provides access to the World Bank indicator API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	perPage        int
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
}

// ClientConfig tunes transport, retry and protection behavior.
type ClientConfig struct {
	Timeout           time.Duration
	PerPage           int
	MaxRetries        int
	RetryDelayBase    time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   int
	BreakerTimeout    time.Duration
}

// UpstreamRetrievalError wraps any failure to obtain an indicator series.
type UpstreamRetrievalError struct {
	Country   string
	Indicator string
	Err       error
}

func (e *UpstreamRetrievalError) Error() string {
	return fmt.Sprintf("upstream retrieval of %s for %s failed: %v", e.Indicator, e.Country, e.Err)
}

func (e *UpstreamRetrievalError) Unwrap() error {
	return e.Err
}

// NewClient creates a new World Bank client. Zero config values fall back to defaults.
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 500
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase < 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	failures := uint32(cfg.BreakerFailures)
	st := gobreaker.Settings{
		Name:    "worldbank",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not evidence against the upstream.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		perPage:        cfg.PerPage,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:        gobreaker.NewCircuitBreaker(st),
	}
}

// apiMessage is the error payload the API returns in place of page metadata.
type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type pageMeta struct {
	Page    flexInt      `json:"page"`
	Pages   flexInt      `json:"pages"`
	PerPage flexInt      `json:"per_page"`
	Total   flexInt      `json:"total"`
	Message []apiMessage `json:"message"`
}

type observation struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// flexInt accepts both JSON numbers and numeric strings; the API has served both.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// FetchIndicator retrieves indicator values for a country over [from, to], keyed by year.
// Observations without a value are dropped.
func (c *Client) FetchIndicator(ctx context.Context, country, indicator string, from, to int) (models.Series, error) {
	series, err := c.fetchAll(ctx, country, indicator, from, to)
	if err != nil {
		return nil, &UpstreamRetrievalError{Country: country, Indicator: indicator, Err: err}
	}
	logger.Debug("Fetched %d observations of %s for %s", len(series), indicator, country)
	return series, nil
}

func (c *Client) fetchAll(ctx context.Context, country, indicator string, from, to int) (models.Series, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range %d:%d", from, to)
	}

	series := make(models.Series)
	for page := 1; ; page++ {
		meta, records, err := c.fetchPage(ctx, country, indicator, from, to, page)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Value == nil {
				continue
			}
			year, err := strconv.Atoi(strings.TrimSpace(rec.Date))
			if err != nil {
				return nil, fmt.Errorf("unexpected date %q: not a year", rec.Date)
			}
			if _, dup := series[year]; dup {
				continue
			}
			series[year] = *rec.Value
		}
		if page >= int(meta.Pages) {
			break
		}
	}
	return series, nil
}

func (c *Client) fetchPage(ctx context.Context, country, indicator string, from, to, page int) (pageMeta, []observation, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v2/country/%s/indicator/%s",
		c.baseURL, url.PathEscape(country), url.PathEscape(indicator)))
	if err != nil {
		return pageMeta{}, nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("format", "json")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("date", fmt.Sprintf("%d:%d", from, to))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getPage(ctx, u.String())
	})
	if err != nil {
		return pageMeta{}, nil, err
	}
	body := res.([]json.RawMessage)

	var meta pageMeta
	if err := json.Unmarshal(body[0], &meta); err != nil {
		return pageMeta{}, nil, fmt.Errorf("failed to decode page metadata: %w", err)
	}
	if len(meta.Message) > 0 {
		m := meta.Message[0]
		return pageMeta{}, nil, fmt.Errorf("api error %s (%s): %s", m.ID, m.Key, m.Value)
	}

	// The API answers [meta, null] when there is nothing to return.
	if len(body) < 2 || string(body[1]) == "null" {
		return meta, nil, nil
	}
	var records []observation
	if err := json.Unmarshal(body[1], &records); err != nil {
		return pageMeta{}, nil, fmt.Errorf("failed to decode observations: %w", err)
	}
	return meta, records, nil
}

// getPage performs the HTTP request with retry logic and returns the top-level JSON array.
func (c *Client) getPage(ctx context.Context, urlStr string) ([]json.RawMessage, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("World Bank request failed (attempt %d/%d): %v", i+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("World Bank server error (attempt %d/%d): %d", i+1, c.maxRetries, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %s", resp.Status)
		}

		var body []json.RawMessage
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(body) == 0 {
			return nil, errors.New("empty response array")
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
