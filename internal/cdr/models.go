package cdr

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the normalised state of an upstream report.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// NormalizeStatus maps the upstream vocabulary onto Status. "done" and
// "complete" succeed, "failed" and "error" fail, an empty value is unknown and
// anything else is still pending.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "done", "complete":
		return StatusDone
	case "failed", "error":
		return StatusFailed
	case "":
		return StatusUnknown
	default:
		return StatusPending
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ReportHandle tracks one upstream report for the duration of a fetch.
type ReportHandle struct {
	ID          string
	Status      Status
	DownloadURL string
}

// Observe applies a polled status. Once the handle is terminal further
// observations are ignored, so the status never regresses.
func (h *ReportHandle) Observe(raw string, downloadURL string) Status {
	if h.Status.Terminal() {
		return h.Status
	}
	h.Status = NormalizeStatus(raw)
	if h.Status == StatusDone {
		h.DownloadURL = strings.TrimSpace(downloadURL)
	}
	return h.Status
}

// FetchRequest is the input of one fetch. Zero Days and Timeout take the
// fetcher defaults.
type FetchRequest struct {
	Token   string
	Days    int
	Timeout time.Duration
}

// Result is the single output of a fetch. It marshals to either the success
// or the failure shape.
type Result struct {
	Success bool
	RunID   string

	// success
	FilePath      string
	Filename      string
	TotalLines    int
	SizeBytes     int64
	ReportID      string
	ReportTitle   string
	DaysRequested int
	Storage       string

	// failure
	Error     string
	ErrorType ErrorKind
	Err       error
}

type successPayload struct {
	Success       bool   `json:"success"`
	FilePath      string `json:"file_path"`
	Filename      string `json:"filename"`
	TotalLines    int    `json:"total_lines"`
	SizeBytes     int64  `json:"size_bytes"`
	ReportID      string `json:"report_id"`
	ReportTitle   string `json:"report_title"`
	DaysRequested int    `json:"days_requested"`
	Storage       string `json:"storage,omitempty"`
	RunID         string `json:"run_id"`
}

type failurePayload struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorType ErrorKind `json:"error_type"`
	RunID     string    `json:"run_id,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successPayload{
			Success:       true,
			FilePath:      r.FilePath,
			Filename:      r.Filename,
			TotalLines:    r.TotalLines,
			SizeBytes:     r.SizeBytes,
			ReportID:      r.ReportID,
			ReportTitle:   r.ReportTitle,
			DaysRequested: r.DaysRequested,
			Storage:       r.Storage,
			RunID:         r.RunID,
		})
	}
	return json.Marshal(failurePayload{
		Error:     r.Error,
		ErrorType: r.ErrorType,
		RunID:     r.RunID,
	})
}

// HistoryEntry is one previously saved report.
type HistoryEntry struct {
	Filename   string    `json:"filename"`
	FilePath   string    `json:"file_path"`
	ImportedAt time.Time `json:"imported_at"`
	SizeBytes  int64     `json:"size_bytes"`
}

// ImportRequest is the body of POST /v1/cdr/imports.
type ImportRequest struct {
	Token     string `json:"token,omitempty"`
	Days      int    `json:"days,omitempty"`
	HoursBack int    `json:"hours_back,omitempty"`
}

// HistoryResponse is the body of GET /v1/cdr/imports.
type HistoryResponse struct {
	Imports []HistoryEntry `json:"imports"`
}
