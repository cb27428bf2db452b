package datagov

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testURL = "https://api.data.test/resource/district-monthly"

const sampleBody = `{
  "records": [
    {"state_name": "Kerala", "district_name": "Idukki", "fin_year": "2023-2024", "month": "Apr", "Total_Exp": "1,234.50"},
    {"state_name": "Kerala", "district_name": "Wayanad", "fin_year": "2023-2024", "month": "Apr", "Total_Exp": 99},
    {"State_Name": "Goa", "District_Name": "North Goa", "fin_year": "2023-2024", "month": "May"}
  ]
}`

func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	if cfg.URL == "" {
		cfg.URL = testURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "secret"
	}
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	f := New(cfg, zap.NewNop(), WithHTTPClient(&http.Client{Transport: transport}))
	return f, transport
}

func TestFetchDecodesRecordsAndSendsParams(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{Limit: 25, UserAgent: "ua-test"})
	transport.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "secret", q.Get("api-key"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "ua-test", req.Header.Get("User-Agent"))
		return httpmock.NewStringResponse(http.StatusOK, sampleBody), nil
	})

	records := f.Fetch(context.Background(), Query{})
	require.Len(t, records, 3)
	// Numbers keep their textual form.
	require.Equal(t, json.Number("99"), records[1]["Total_Exp"])
	require.Equal(t, 1, transport.GetTotalCallCount())
}

func TestFetchFiltersByStateAndDistrict(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{})
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusOK, sampleBody))

	records := f.Fetch(context.Background(), Query{State: " kerala ", District: "IDUKKI"})
	require.Len(t, records, 1)
	require.Equal(t, "Idukki", records[0]["district_name"])

	records = f.Fetch(context.Background(), Query{State: "goa"})
	require.Len(t, records, 1)
}

func TestFetchQueryLimitOverridesConfig(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{Limit: 10})
	transport.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "3", req.URL.Query().Get("limit"))
		return httpmock.NewStringResponse(http.StatusOK, `{"records": []}`), nil
	})

	records := f.Fetch(context.Background(), Query{Limit: 3})
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestFetchRetriesTransientStatuses(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{MaxRetries: 3})
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, testURL, func(*http.Request) (*http.Response, error) {
		switch calls.Add(1) {
		case 1:
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
		case 2:
			return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
		default:
			return httpmock.NewStringResponse(http.StatusOK, sampleBody), nil
		}
	})

	records := f.Fetch(context.Background(), Query{})
	require.Len(t, records, 3)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{MaxRetries: 2})
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, testURL, func(*http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return httpmock.NewStringResponse(http.StatusOK, sampleBody), nil
	})

	require.Len(t, f.Fetch(context.Background(), Query{}), 3)
}

func TestFetchReturnsEmptyWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{MaxRetries: 2})
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	records := f.Fetch(context.Background(), Query{})
	require.NotNil(t, records)
	require.Empty(t, records)
	// One initial attempt plus two retries.
	require.Equal(t, 3, transport.GetTotalCallCount())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{"bad_request", http.StatusBadRequest},
		{"forbidden", http.StatusForbidden},
		{"not_found", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, transport := newTestFetcher(t, Config{MaxRetries: 3})
			transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(tt.status, "no"))

			require.Empty(t, f.Fetch(context.Background(), Query{}))
			require.Equal(t, 1, transport.GetTotalCallCount())
		})
	}
}

func TestFetchInvalidJSONReturnsEmpty(t *testing.T) {
	t.Parallel()

	f, transport := newTestFetcher(t, Config{})
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusOK, `{invalid json`))

	records := f.Fetch(context.Background(), Query{})
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestFetchWithoutCredentialsSkipsRequest(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	f := New(Config{URL: testURL}, zap.NewNop(), WithHTTPClient(&http.Client{Transport: transport}))

	require.Empty(t, f.Fetch(context.Background(), Query{}))
	require.Zero(t, transport.GetTotalCallCount())

	f = New(Config{APIKey: "k"}, nil, WithHTTPClient(&http.Client{Transport: transport}))
	require.Empty(t, f.Fetch(context.Background(), Query{}))
	require.Zero(t, transport.GetTotalCallCount())
}

func TestFetchCanceledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	f := New(Config{
		URL:        testURL,
		APIKey:     "k",
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
	}, zap.NewNop(), WithHTTPClient(&http.Client{Transport: transport}))
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, "busy"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.Empty(t, f.Fetch(ctx, Query{}))
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, transport.GetTotalCallCount())
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := retryPolicy{maxRetries: 3, baseDelay: 100 * time.Millisecond, maxDelay: 300 * time.Millisecond}
	for attempt := range 5 {
		d := p.backoff(attempt)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
	require.True(t, p.retryableStatus(http.StatusGatewayTimeout))
	require.False(t, p.retryableStatus(http.StatusUnauthorized))
	require.False(t, p.retryableError(context.Background(), context.Canceled))
	require.True(t, p.retryableError(context.Background(), errors.New("reset")))
}
