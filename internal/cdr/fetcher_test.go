package cdr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdg312/cdr-hub/internal/blob"
	"github.com/fdg312/cdr-hub/internal/config"
	"github.com/fdg312/cdr-hub/internal/webex"
)

var filenamePattern = regexp.MustCompile(`^cdr_report_\d{8}_\d{6}\.csv$`)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type failingStore struct {
	blob.Store
}

func (failingStore) PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error) {
	return 0, errors.New("disk full")
}

func newTestFetcher(t *testing.T, transport webex.Transport, opts ...Option) (*Fetcher, *blob.LocalStore, *fakeClock) {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now, clock.Sleep)}, opts...)
	return NewFetcher(transport, store, opts...), store, clock
}

func TestFetchConcreteScenario(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls: []webex.ReportStatus{
			{Status: "pending"},
			{Status: "done", DownloadURL: "https://x/y"},
		},
		Content: []byte("a,b\nc,d\n"),
	}
	fetcher, store, clock := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 1})

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Equal(t, 2, res.TotalLines)
	assert.Regexp(t, filenamePattern, res.Filename)
	assert.Equal(t, "cdr_report_20250102_030410.csv", res.Filename)
	assert.Equal(t, store.Location(res.Filename), res.FilePath)
	assert.Equal(t, 1, res.DaysRequested)
	assert.Equal(t, "r1", res.ReportID)
	assert.Equal(t, "CDR Report (1 days)", res.ReportTitle)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 2, transport.PollCalls)
	assert.Equal(t, []string{"https://x/y"}, transport.DownloadCalls)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.sleeps)
	for _, tok := range transport.Tokens {
		assert.Equal(t, "abc", tok)
	}

	onDisk, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "a,b\nc,d\n", string(onDisk))
}

func TestFetchCreateBodyIsTemplateAndDays(t *testing.T) {
	for _, days := range []int{1, 2, 7, 31, 40, 365} {
		t.Run(fmt.Sprintf("days=%d", days), func(t *testing.T) {
			transport := webex.NewMockTransport()
			fetcher, _, _ := newTestFetcher(t, transport)

			res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: days})
			require.True(t, res.Success)

			require.Len(t, transport.CreateCalls, 1)
			body, err := json.Marshal(transport.CreateCalls[0])
			require.NoError(t, err)
			assert.JSONEq(t, fmt.Sprintf(`{"templateId":"cdr","days":%d}`, days), string(body))
		})
	}
}

func TestFetchDefaultsDaysToOne(t *testing.T) {
	transport := webex.NewMockTransport()
	fetcher, _, _ := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})
	require.True(t, res.Success)

	assert.Equal(t, 1, transport.CreateCalls[0].Days)
	assert.Equal(t, 1, res.DaysRequested)
}

func TestFetchMissingReportID(t *testing.T) {
	transport := &webex.MockTransport{Created: webex.CreatedReport{}}
	fetcher, _, _ := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 1})

	assert.False(t, res.Success)
	assert.Equal(t, KindMissingReportID, res.ErrorType)
	assert.Contains(t, res.Error, "No report ID")
	assert.ErrorIs(t, res.Err, ErrMissingReportID)
	assert.Zero(t, transport.PollCalls, "no polling without an id")
}

func TestFetchTimeout(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls:   []webex.ReportStatus{{Status: "pending"}},
	}
	fetcher, _, clock := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 1, Timeout: 12 * time.Second})

	assert.False(t, res.Success)
	assert.Equal(t, KindTimeout, res.ErrorType)
	assert.Contains(t, res.Error, "timed out after 12 seconds")
	assert.Empty(t, transport.DownloadCalls, "no download after a timeout")
	// polls at 0s, 5s, 10s; the 15s check is past the budget
	assert.Equal(t, 3, transport.PollCalls)
	assert.Len(t, clock.sleeps, 3)
}

func TestFetchUnknownStatusKeepsPolling(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls: []webex.ReportStatus{
			{Status: ""},
			{Status: "running"},
			{Status: "complete", DownloadURL: "https://x/y"},
		},
		Content: []byte("h\n"),
	}
	fetcher, _, _ := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

	require.True(t, res.Success)
	assert.Equal(t, 3, transport.PollCalls)
}

func TestFetchFailedStatusStopsImmediately(t *testing.T) {
	for _, status := range []string{"failed", "error"} {
		t.Run(status, func(t *testing.T) {
			transport := &webex.MockTransport{
				Created: webex.CreatedReport{ID: "r1"},
				Polls: []webex.ReportStatus{
					{Status: status},
					{Status: "done", DownloadURL: "https://x/y"},
				},
			}
			fetcher, _, clock := newTestFetcher(t, transport)

			res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 1})

			assert.False(t, res.Success)
			assert.Equal(t, KindFailed, res.ErrorType)
			assert.ErrorIs(t, res.Err, ErrReportFailed)
			assert.Equal(t, 1, transport.PollCalls)
			assert.Empty(t, clock.sleeps)
			assert.Empty(t, transport.DownloadCalls)
		})
	}
}

func TestFetchDoneWithoutDownloadURL(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls:   []webex.ReportStatus{{Status: "done"}},
	}
	fetcher, _, _ := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

	assert.False(t, res.Success)
	assert.Equal(t, KindMissingDownloadURL, res.ErrorType)
	assert.Contains(t, res.Error, "No download URL")
	assert.Empty(t, transport.DownloadCalls)
}

func TestFetchTransportErrors(t *testing.T) {
	boom := &webex.HTTPError{Op: "x", StatusCode: http.StatusUnauthorized}

	tests := []struct {
		name      string
		transport *webex.MockTransport
	}{
		{"create", &webex.MockTransport{CreateErr: boom}},
		{"poll", &webex.MockTransport{Created: webex.CreatedReport{ID: "r1"}, PollErr: boom}},
		{"download", &webex.MockTransport{
			Created:     webex.CreatedReport{ID: "r1"},
			Polls:       []webex.ReportStatus{{Status: "done", DownloadURL: "https://x/y"}},
			DownloadErr: boom,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher, _, _ := newTestFetcher(t, tt.transport)

			res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

			assert.False(t, res.Success)
			assert.Equal(t, KindTransport, res.ErrorType)
			assert.Contains(t, res.Error, "Invalid or expired bearer token")

			var httpErr *webex.HTTPError
			assert.True(t, errors.As(res.Err, &httpErr))
		})
	}
}

func TestFetchCreateIsNotRetried(t *testing.T) {
	transport := &webex.MockTransport{CreateErr: errors.New("connection reset")}
	fetcher, _, _ := newTestFetcher(t, transport)

	fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

	assert.Len(t, transport.CreateCalls, 1)
}

func TestFetchStorageError(t *testing.T) {
	transport := webex.NewMockTransport()
	clock := newFakeClock()
	fetcher := NewFetcher(transport, failingStore{}, WithClock(clock.Now, clock.Sleep))

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

	assert.False(t, res.Success)
	assert.Equal(t, KindStorage, res.ErrorType)
	assert.Contains(t, res.Error, "disk full")
}

func TestFetchUsageAndValidation(t *testing.T) {
	tests := []struct {
		name     string
		req      FetchRequest
		wantKind ErrorKind
	}{
		{"missing token", FetchRequest{Token: "  "}, KindUsage},
		{"negative days", FetchRequest{Token: "abc", Days: -1}, KindInvalidRequest},
		{"above max", FetchRequest{Token: "abc", Days: 40}, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := webex.NewMockTransport()
			fetcher, _, _ := newTestFetcher(t, transport, WithDays(1, 31))

			res := fetcher.Fetch(context.Background(), tt.req)

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantKind, res.ErrorType)
			assert.Empty(t, transport.CreateCalls, "no network call on invalid input")
		})
	}
}

func TestFetchCanceledWhileWaiting(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls:   []webex.ReportStatus{{Status: "pending"}},
	}
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	fetcher := NewFetcher(transport, store, WithClock(nil, sleep))

	res := fetcher.Fetch(ctx, FetchRequest{Token: "abc"})

	assert.False(t, res.Success)
	assert.Equal(t, KindCanceled, res.ErrorType)
	assert.Equal(t, 1, transport.PollCalls)
}

func TestFetchWithExponentialWait(t *testing.T) {
	transport := &webex.MockTransport{
		Created: webex.CreatedReport{ID: "r1"},
		Polls: []webex.ReportStatus{
			{Status: "pending"},
			{Status: "pending"},
			{Status: "pending"},
			{Status: "done", DownloadURL: "https://x/y"},
		},
		Content: []byte("a\n"),
	}
	fetcher, _, clock := newTestFetcher(t, transport, WithWaitPolicy(ExponentialWait(5*time.Second)))

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"})

	require.True(t, res.Success)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, clock.sleeps)
}

func TestFetchRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ok := webex.NewMockTransport()
	fetcher, _, _ := newTestFetcher(t, ok, WithMetrics(metrics))
	require.True(t, fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"}).Success)

	bad := &webex.MockTransport{Created: webex.CreatedReport{}}
	fetcher, _, _ = newTestFetcher(t, bad, WithMetrics(metrics))
	require.False(t, fetcher.Fetch(context.Background(), FetchRequest{Token: "abc"}).Success)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fetches.WithLabelValues(string(KindMissingReportID))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.polls))
}

func TestFetchOverRealHTTPTransport(t *testing.T) {
	var mu sync.Mutex
	polls := 0

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /v1/reports", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "r1"})
	})
	mux.HandleFunc("GET /v1/reports/r1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		if n == 1 {
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "done", "downloadUrl": srv.URL + "/files/r1.csv"})
	})
	mux.HandleFunc("GET /files/r1.csv", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("a,b\nc,d\n"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	transport := webex.NewHTTPTransport(config.WebexConfig{APIBaseURL: srv.URL + "/v1"})
	fetcher, _, _ := newTestFetcher(t, transport)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 1})

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Equal(t, 2, res.TotalLines)
	assert.Equal(t, 2, polls)
}

func TestHistoryNewestFirst(t *testing.T) {
	fetcher, store, _ := newTestFetcher(t, webex.NewMockTransport())
	ctx := context.Background()

	for _, name := range []string{
		"cdr_report_20250101_080000.csv",
		"cdr_report_20250103_080000.csv",
		"cdr_report_20250102_080000.csv",
		"cdr_report_notes.txt",
	} {
		_, err := store.PutObject(ctx, name, []byte("a\n"), "text/csv")
		require.NoError(t, err)
	}

	entries, err := fetcher.History(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "cdr_report_20250103_080000.csv", entries[0].Filename)
	assert.Equal(t, "cdr_report_20250102_080000.csv", entries[1].Filename)
	assert.Equal(t, "cdr_report_20250101_080000.csv", entries[2].Filename)
	assert.Equal(t, time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC), entries[0].ImportedAt)
	assert.Equal(t, store.Location(entries[0].Filename), entries[0].FilePath)
	assert.EqualValues(t, 2, entries[0].SizeBytes)
}

func TestFetchWithConfigDefaultsForwardsLargeDays(t *testing.T) {
	transport := webex.NewMockTransport()
	opts := ConfigOptions(config.FetchConfig{
		PollIntervalSeconds: 5,
		PollTimeoutSeconds:  300,
		PollStrategy:        config.PollStrategyFixed,
		DefaultDays:         1,
	})
	fetcher, _, _ := newTestFetcher(t, transport, opts...)

	res := fetcher.Fetch(context.Background(), FetchRequest{Token: "abc", Days: 40})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 40, res.DaysRequested)
	require.Len(t, transport.CreateCalls, 1)
	assert.Equal(t, 40, transport.CreateCalls[0].Days)
}
