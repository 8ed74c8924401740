package cdr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind string

const (
	KindUsage              ErrorKind = "usage"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindTransport          ErrorKind = "transport"
	KindMissingReportID    ErrorKind = "missing_report_id"
	KindMissingDownloadURL ErrorKind = "missing_download_url"
	KindFailed             ErrorKind = "failed"
	KindTimeout            ErrorKind = "timeout"
	KindStorage            ErrorKind = "storage"
	KindCanceled           ErrorKind = "canceled"
)

var (
	ErrMissingToken       = errors.New("an API token is required")
	ErrInvalidDays        = errors.New("days must be a positive integer")
	ErrMissingReportID    = errors.New("No report ID returned from API")
	ErrMissingDownloadURL = errors.New("No download URL provided in completed report")
	ErrReportFailed       = errors.New("Report generation failed")
	ErrTimeout            = errors.New("Report generation timed out")
	ErrInvalidFilename    = errors.New("not a saved report name")
)

// FetchError pairs an error with its classification.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

func timeoutError(limitSeconds int) *FetchError {
	return newFetchError(KindTimeout, fmt.Errorf("%w after %d seconds", ErrTimeout, limitSeconds))
}

// KindOf returns the classification carried by err, or transport for
// anything unclassified.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}
