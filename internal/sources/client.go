// Package sources fetches market data from TWSE, TPEx, MOPS, Yahoo Finance
// and the news feeds.
package sources

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/resilience"
)

// DefaultUserAgent is sent with every request; the exchanges reject the Go default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Observer is notified after every request.
type Observer func(source string, elapsed time.Duration, err error)

// ClientConfig configures an HTTP client for one provider.
type ClientConfig struct {
	Timeout           time.Duration
	Retries           int
	RetryWait         time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	Breaker           resilience.BreakerConfig
}

// DefaultClientConfig returns conservative settings for the exchange sites.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           10 * time.Second,
		Retries:           2,
		RetryWait:         500 * time.Millisecond,
		RequestsPerSecond: 3,
		Burst:             3,
		UserAgent:         DefaultUserAgent,
		Breaker:           resilience.DefaultBreakerConfig(),
	}
}

// Client is a throttled resty client with one circuit breaker per source.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Registry
	logger   zerolog.Logger
	observer Observer
}

// NewClient creates a client. A RequestsPerSecond of zero disables throttling.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeaders(map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept-Encoding": "gzip, br",
		}).
		OnAfterResponse(decompress)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breaker := cfg.Breaker
	if breaker.FailureThreshold <= 0 {
		breaker = resilience.DefaultBreakerConfig()
	}

	return &Client{http: httpClient, limiter: limiter, breakers: resilience.NewRegistry(breaker), logger: logger}
}

// SetObserver installs a request observer.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// decompress handles br and gzip bodies, since an explicit Accept-Encoding
// turns off the transport's own gzip support.
func decompress(_ *resty.Client, resp *resty.Response) error {
	var reader io.Reader
	switch resp.Header().Get("Content-Encoding") {
	case "br":
		reader = brotli.NewReader(bytes.NewReader(resp.Body()))
	case "gzip":
		// resty already inflates plain gzip responses.
		if !bytes.HasPrefix(resp.Body(), []byte{0x1f, 0x8b}) {
			return nil
		}
		gz, err := gzip.NewReader(bytes.NewReader(resp.Body()))
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	default:
		return nil
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	resp.SetBody(decompressed)
	return nil
}

// Get fetches url and returns the raw body. Non-2xx responses become DataErrors.
// Transport errors, 429 and 5xx count against the source's circuit breaker;
// while it is open Get fails without a request.
func (c *Client) Get(ctx context.Context, source, url string, query map[string]string) ([]byte, error) {
	breaker := c.breakers.Get(source)
	if err := breaker.Allow(); err != nil {
		return nil, apperrors.NewDataError(source, "", "skipped", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		breaker.Release()
		return nil, apperrors.NewDataError(source, "", "throttle", err)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	elapsed := time.Since(start)
	breaker.Record(outage(ctx, resp, err))

	if err == nil && !resp.IsSuccess() {
		cause := apperrors.ErrSourceUnavailable
		if resp.StatusCode() == http.StatusTooManyRequests {
			cause = apperrors.ErrRateLimited
		}
		err = fmt.Errorf("status %d: %w", resp.StatusCode(), cause)
	}
	if c.observer != nil {
		c.observer(source, elapsed, err)
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("source", source).Str("url", url).Dur("elapsed", elapsed).Msg("request failed")
		return nil, apperrors.NewDataError(source, "", "request failed", err)
	}

	c.logger.Debug().Str("source", source).Str("url", url).Dur("elapsed", elapsed).Int("bytes", len(resp.Body())).Msg("fetched")
	return resp.Body(), nil
}

// Breakers returns the circuit breaker stats of the client.
func (c *Client) Breakers() []resilience.Stats {
	return c.breakers.AllStats()
}

func outage(ctx context.Context, resp *resty.Response, err error) bool {
	if err != nil {
		return ctx.Err() == nil
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, source, url string, query map[string]string, out interface{}) error {
	body, err := c.Get(ctx, source, url, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewDataError(source, "", "decode json", err)
	}
	return nil
}
