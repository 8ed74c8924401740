package cdr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fdg312/cdr-hub/internal/blob"
	"github.com/fdg312/cdr-hub/internal/webex"
)

// Fetcher drives one CDR report through create, poll and download, and
// stores the artifact. It keeps no state between fetches.
type Fetcher struct {
	transport   webex.Transport
	store       blob.Store
	storageMode string
	logger      *zap.Logger
	metrics     *Metrics
	wait        WaitPolicy
	pollTimeout time.Duration
	defaultDays int
	maxDays     int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

func WithWaitPolicy(p WaitPolicy) Option {
	return func(f *Fetcher) {
		if p != nil {
			f.wait = p
		}
	}
}

// WithPollTimeout sets the polling budget used when a request has none.
func WithPollTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.pollTimeout = d
		}
	}
}

// WithDays sets the days used when a request has none and, when max > 0, the
// largest accepted value.
func WithDays(defaultDays, maxDays int) Option {
	return func(f *Fetcher) {
		if defaultDays > 0 {
			f.defaultDays = defaultDays
		}
		f.maxDays = maxDays
	}
}

// WithStorageMode labels results with the blob mode in effect.
func WithStorageMode(mode string) Option {
	return func(f *Fetcher) { f.storageMode = mode }
}

// WithClock replaces the wall clock and the sleep between polls.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

func NewFetcher(transport webex.Transport, store blob.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport:   transport,
		store:       store,
		logger:      zap.NewNop(),
		wait:        FixedWait(DefaultPollInterval),
		pollTimeout: DefaultPollTimeout,
		defaultDays: 1,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch runs one report to completion. It never returns an error: every
// failure is reported through the failure shape of Result.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) Result {
	started := f.now()
	runID := uuid.NewString()
	log := f.logger.With(zap.String("run_id", runID))

	res, err := f.run(ctx, req, log)
	if err != nil {
		kind := KindOf(err)
		log.Error("cdr fetch failed", zap.String("error_type", string(kind)), zap.Error(err))
		f.metrics.observeFetch(string(kind), f.now().Sub(started))
		return Result{
			Success:   false,
			RunID:     runID,
			Error:     err.Error(),
			ErrorType: kind,
			Err:       err,
		}
	}

	res.RunID = runID
	log.Info("cdr report saved",
		zap.String("file_path", res.FilePath),
		zap.Int("total_lines", res.TotalLines),
		zap.Int("days", res.DaysRequested),
	)
	f.metrics.observeFetch("success", f.now().Sub(started))
	return res
}

func (f *Fetcher) run(ctx context.Context, req FetchRequest, log *zap.Logger) (Result, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return Result{}, newFetchError(KindUsage, ErrMissingToken)
	}

	days := req.Days
	if days == 0 {
		days = f.defaultDays
	}
	if days < 1 {
		return Result{}, newFetchError(KindInvalidRequest, fmt.Errorf("%w, got %d", ErrInvalidDays, days))
	}
	if f.maxDays > 0 && days > f.maxDays {
		return Result{}, newFetchError(KindInvalidRequest, fmt.Errorf("%w not above %d, got %d", ErrInvalidDays, f.maxDays, days))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.pollTimeout
	}

	log.Info("requesting cdr report", zap.Int("days", days))
	handle, title, err := f.create(ctx, token, days)
	if err != nil {
		return Result{}, err
	}
	log = log.With(zap.String("report_id", handle.ID))
	log.Info("report created")

	if err := f.poll(ctx, token, handle, timeout, log); err != nil {
		return Result{}, err
	}

	content, err := f.download(ctx, token, handle, log)
	if err != nil {
		return Result{}, err
	}

	filename := FileName(f.now())
	size, err := f.store.PutObject(ctx, filename, content, contentTypeCSV)
	if err != nil {
		return Result{}, newFetchError(KindStorage, fmt.Errorf("failed to save report: %w", err))
	}

	if title == "" {
		title = reportTitle(days)
	}
	return Result{
		Success:       true,
		FilePath:      f.store.Location(filename),
		Filename:      filename,
		TotalLines:    CountLines(content),
		SizeBytes:     size,
		ReportID:      handle.ID,
		ReportTitle:   title,
		DaysRequested: days,
		Storage:       f.storageMode,
	}, nil
}

// create issues the single creation call. It is never retried: a second call
// would start a second report upstream.
func (f *Fetcher) create(ctx context.Context, token string, days int) (*ReportHandle, string, error) {
	created, err := f.transport.CreateReport(ctx, token, webex.ReportRequest{
		TemplateID: webex.TemplateCDR,
		Days:       days,
	})
	if err != nil {
		return nil, "", classifyTransport(err)
	}

	id := strings.TrimSpace(created.ID)
	if id == "" {
		return nil, "", newFetchError(KindMissingReportID, ErrMissingReportID)
	}

	return &ReportHandle{ID: id, Status: StatusPending}, created.Title, nil
}

// poll refreshes the handle until it is terminal or timeout has elapsed. The
// deadline is checked before each poll; an in-flight call is bounded only by
// the transport's own timeout.
func (f *Fetcher) poll(ctx context.Context, token string, handle *ReportHandle, timeout time.Duration, log *zap.Logger) error {
	wait := f.wait()
	started := f.now()

	for attempt := 1; ; attempt++ {
		elapsed := f.now().Sub(started)
		if elapsed > timeout {
			return timeoutError(int(timeout / time.Second))
		}

		log.Debug("checking report status", zap.Int("attempt", attempt), zap.Duration("elapsed", elapsed))
		f.metrics.observePoll()
		polled, err := f.transport.GetReport(ctx, token, handle.ID)
		if err != nil {
			return classifyTransport(err)
		}

		status := handle.Observe(polled.Status, polled.DownloadURL)
		log.Info("report status", zap.String("status", polled.Status), zap.Int("attempt", attempt))

		switch status {
		case StatusDone:
			if handle.DownloadURL == "" {
				return newFetchError(KindMissingDownloadURL, ErrMissingDownloadURL)
			}
			return nil
		case StatusFailed:
			return newFetchError(KindFailed, fmt.Errorf("%w: upstream status %q", ErrReportFailed, polled.Status))
		}

		if err := f.sleep(ctx, nextDelay(wait)); err != nil {
			return newFetchError(KindCanceled, fmt.Errorf("polling interrupted: %w", err))
		}
	}
}

func (f *Fetcher) download(ctx context.Context, token string, handle *ReportHandle, log *zap.Logger) ([]byte, error) {
	log.Info("downloading report", zap.String("download_url", handle.DownloadURL))
	content, err := f.transport.Download(ctx, token, handle.DownloadURL)
	if err != nil {
		return nil, classifyTransport(err)
	}
	return content, nil
}

func classifyTransport(err error) *FetchError {
	if errors.Is(err, context.Canceled) {
		return newFetchError(KindCanceled, err)
	}
	return newFetchError(KindTransport, err)
}

// History lists previously saved reports, newest first.
func (f *Fetcher) History(ctx context.Context) ([]HistoryEntry, error) {
	objects, err := f.store.ListObjects(ctx, filenamePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved reports: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, filenameSuffix) {
			continue
		}
		importedAt, ok := parseFileName(obj.Key)
		if !ok {
			importedAt = obj.ModifiedAt
		}
		entries = append(entries, HistoryEntry{
			Filename:   obj.Key,
			FilePath:   f.store.Location(obj.Key),
			ImportedAt: importedAt,
			SizeBytes:  obj.Size,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ImportedAt.After(entries[j].ImportedAt)
	})
	return entries, nil
}

// Open returns the content of a previously saved report. Only names produced
// by FileName are accepted.
func (f *Fetcher) Open(ctx context.Context, filename string) ([]byte, error) {
	if _, ok := parseFileName(filename); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	content, err := f.store.GetObject(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read saved report: %w", err)
	}
	return content, nil
}
