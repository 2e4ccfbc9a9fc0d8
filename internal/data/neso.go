package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dcl-forecast/internal/logger"
	"dcl-forecast/internal/model"
)

// DefaultBaseURL is the public NESO data portal.
const DefaultBaseURL = "https://api.neso.energy"

const searchSQLPath = "/api/3/action/datastore_search_sql"

// ErrMalformedResponse is returned when the API answers but the body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed NESO response")

// APIError represents an error reported by the NESO API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string // For rate limit errors
}

func (e *APIError) Error() string {
	return e.Message
}

// retryable reports whether the request may succeed if sent again.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOptions configures a NESOClient. Zero values fall back to defaults.
type ClientOptions struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	Backoff           time.Duration
	Cache             Cache
	Logger            *logrus.Logger
}

// NESOClient queries the NESO CKAN datastore with SQL.
type NESOClient struct {
	BaseURL    string
	Client     *http.Client
	Cache      Cache
	MaxRetries int
	Backoff    time.Duration

	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewNESOClient creates a new NESO API client.
// If opts.BaseURL is empty, defaults to "https://api.neso.energy".
func NewNESOClient(opts ClientOptions) *NESOClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &NESOClient{
		BaseURL:    opts.BaseURL,
		Client:     &http.Client{Timeout: opts.Timeout},
		Cache:      opts.Cache,
		MaxRetries: opts.MaxRetries,
		Backoff:    opts.Backoff,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		log:        logger.Component(opts.Logger, "neso"),
	}
}

type searchResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Records []model.Record `json:"records"`
	} `json:"result"`
	Error json.RawMessage `json:"error,omitempty"`
}

// Query runs sql against the datastore and returns its records. Numeric fields
// are decoded as json.Number so that ParseNumber keeps their exact text.
//
// Transport errors, 429 and 5xx answers are retried with exponential backoff.
// Cached bodies are served without touching the network.
func (c *NESOClient) Query(ctx context.Context, sql string) ([]model.Record, error) {
	key := CacheKey(sql)
	if c.Cache != nil {
		if body, ok := c.Cache.Get(ctx, key); ok {
			records, err := decodeRecords(body)
			if err == nil {
				c.log.WithField("records", len(records)).Debug("cache hit")
				return records, nil
			}
			c.log.WithError(err).Warn("discarding undecodable cache entry")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt, lastErr)); err != nil {
				return nil, err
			}
			c.log.WithFields(logrus.Fields{"attempt": attempt + 1, "error": lastErr}).Warn("retrying request")
		}

		body, err := c.do(ctx, sql)
		if err == nil {
			records, err := decodeRecords(body)
			if err != nil {
				return nil, err
			}
			if c.Cache != nil {
				c.Cache.Set(ctx, key, body)
			}
			c.log.WithField("records", len(records)).Info("query succeeded")
			return records, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("neso query failed after %d attempts: %w", c.MaxRetries+1, lastErr)
}

func (c *NESOClient) do(ctx context.Context, sql string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.BaseURL + searchSQLPath)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("sql", sql)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.log.WithError(err).WithField("duration", duration).Warn("request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "duration": duration}).Debug("response")

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    fmt.Sprintf("Rate limit exceeded. Retry after: %s", retryAfter),
			RetryAfter: retryAfter,
		}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       "BAD_QUERY",
			Message:    "Datastore rejected the SQL query",
		}
	default:
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       "API_ERROR",
			Message:    fmt.Sprintf("API returned status %d: %s", resp.StatusCode, resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// decodeRecords parses a datastore_search_sql body.
func decodeRecords(body []byte) ([]model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out searchResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !out.Success {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Code:       "QUERY_FAILED",
			Message:    fmt.Sprintf("datastore query unsuccessful: %s", string(out.Error)),
		}
	}
	return out.Result.Records, nil
}

// backoff doubles the base delay per attempt; a Retry-After header in seconds wins.
func (c *NESOClient) backoff(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter != "" {
		if secs, perr := strconv.Atoi(apiErr.RetryAfter); perr == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.Backoff << (attempt - 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
