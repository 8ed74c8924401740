// Package webex talks to the Webex Reports API.
package webex

import "context"

// TemplateCDR is the report template producing Call Detail Records.
const TemplateCDR = "cdr"

// Transport is the create/poll/download capability of an asynchronous report
// API. Every call carries the caller's bearer token.
type Transport interface {
	CreateReport(ctx context.Context, token string, req ReportRequest) (CreatedReport, error)
	GetReport(ctx context.Context, token string, id string) (ReportStatus, error)
	Download(ctx context.Context, token string, url string) ([]byte, error)
}

// ReportRequest is the body of the create call.
type ReportRequest struct {
	TemplateID string `json:"templateId"`
	Days       int    `json:"days"`
}

// CreatedReport is the subset of the create response the fetcher needs.
type CreatedReport struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ReportStatus is the subset of the status response the fetcher needs.
// Status is passed through verbatim; callers normalise it.
type ReportStatus struct {
	ID          string `json:"id,omitempty"`
	Status      string `json:"status"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}
