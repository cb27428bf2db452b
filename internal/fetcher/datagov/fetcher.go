// Package datagov fetches raw records from the open government data API.
//
// Every failure mode ends in an empty result: a missing key or URL, a non-retryable status,
// exhausted retries, or an undecodable body. Callers treat "no records" as "upstream unavailable".
package datagov

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

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/dataset"
	"github.com/JakeFAU/labor-stats-dashboard/internal/metrics"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultLimit      = 5000
	DefaultUserAgent  = "labor-stats-dashboard/1.0"
)

var errUpstreamStatus = errors.New("unexpected upstream status")

// Config controls the fetcher.
type Config struct {
	URL        string
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Limit      int
}

// Query narrows a fetch. Zero values mean no filter and the configured limit.
type Query struct {
	State    string
	District string
	Limit    int
}

// Fetcher retrieves dataset records over HTTP.
type Fetcher struct {
	cfg    Config
	client *http.Client
	retry  retryPolicy
	logger *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient swaps the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			baseDelay:  cfg.BaseDelay,
			maxDelay:   cfg.MaxDelay,
		},
		logger: logger.Named("datagov"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type envelope struct {
	Records []dataset.RawRecord `json:"records"`
}

// Fetch returns the records matching q, or an empty slice when the upstream cannot be read.
func (f *Fetcher) Fetch(ctx context.Context, q Query) []dataset.RawRecord {
	if f.cfg.APIKey == "" || f.cfg.URL == "" {
		f.logger.Warn("dataset fetch skipped: api key or dataset url not configured")
		return []dataset.RawRecord{}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = f.cfg.Limit
	}
	target, err := f.requestURL(limit)
	if err != nil {
		f.logger.Error("invalid dataset url", zap.Error(err))
		return []dataset.RawRecord{}
	}

	body, err := f.getWithRetry(ctx, target)
	if err != nil {
		f.logger.Warn("dataset fetch failed", zap.Error(err))
		return []dataset.RawRecord{}
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		metrics.ObserveUpstreamAttempt("decode_error")
		f.logger.Warn("dataset decode failed", zap.Error(err))
		return []dataset.RawRecord{}
	}

	records := filterRecords(env.Records, q.State, q.District)
	f.logger.Info("dataset fetched", zap.Int("records", len(records)), zap.Int("limit", limit))
	if records == nil {
		return []dataset.RawRecord{}
	}
	return records
}

func (f *Fetcher) requestURL(limit int) (string, error) {
	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse dataset url: %w", err)
	}
	q := u.Query()
	q.Set("api-key", f.cfg.APIKey)
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) getWithRetry(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, status, err := f.getOnce(ctx, target)
		switch {
		case err == nil && status == http.StatusOK:
			metrics.ObserveUpstreamAttempt("ok")
			return body, nil
		case err != nil:
			metrics.ObserveUpstreamAttempt("error")
			lastErr = err
			if !f.retry.retryableError(ctx, err) {
				return nil, lastErr
			}
		default:
			metrics.ObserveUpstreamAttempt(strconv.Itoa(status))
			lastErr = fmt.Errorf("%w: %d", errUpstreamStatus, status)
			if !f.retry.retryableStatus(status) {
				return nil, lastErr
			}
		}
		if attempt >= f.retry.maxRetries {
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr)
		}
		wait := f.retry.backoff(attempt)
		f.logger.Debug("retrying dataset fetch",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("fetch canceled: %w", err)
		}
	}
}

func (f *Fetcher) getOnce(ctx context.Context, target string) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get dataset: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read dataset body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// filterRecords keeps records whose resolved state and district names match, case-insensitively.
func filterRecords(records []dataset.RawRecord, state, district string) []dataset.RawRecord {
	wantState := dataset.NormalizeKeyPart(state)
	wantDistrict := dataset.NormalizeKeyPart(district)
	if wantState == "" && wantDistrict == "" {
		return records
	}
	out := make([]dataset.RawRecord, 0, len(records))
	for _, rec := range records {
		if wantState != "" {
			name, _ := rec.ResolveString(dataset.StateNameAlias)
			if dataset.NormalizeKeyPart(name) != wantState {
				continue
			}
		}
		if wantDistrict != "" {
			name, _ := rec.ResolveString(dataset.DistrictNameAlias)
			if dataset.NormalizeKeyPart(name) != wantDistrict {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}
