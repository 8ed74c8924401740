package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fdg312/cdr-hub/internal/config"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 4096

// HTTPTransport calls the Reports REST API directly.
type HTTPTransport struct {
	baseURL        string
	controlClient  *http.Client
	downloadClient *http.Client
}

func NewHTTPTransport(cfg config.WebexConfig) *HTTPTransport {
	controlTimeout := cfg.ControlTimeoutSeconds
	if controlTimeout <= 0 {
		controlTimeout = 30
	}
	downloadTimeout := cfg.DownloadTimeoutSeconds
	if downloadTimeout <= 0 {
		downloadTimeout = 60
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultWebexAPIBaseURL
	}

	return &HTTPTransport{
		baseURL:        baseURL,
		controlClient:  &http.Client{Timeout: time.Duration(controlTimeout) * time.Second},
		downloadClient: &http.Client{Timeout: time.Duration(downloadTimeout) * time.Second},
	}
}

func (t *HTTPTransport) CreateReport(ctx context.Context, token string, req ReportRequest) (CreatedReport, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CreatedReport{}, err
	}

	var created CreatedReport
	if err := t.doJSON(ctx, "create", http.MethodPost, t.baseURL+"/reports", token, body, &created); err != nil {
		return CreatedReport{}, err
	}
	return created, nil
}

func (t *HTTPTransport) GetReport(ctx context.Context, token string, id string) (ReportStatus, error) {
	var status ReportStatus
	endpoint := t.baseURL + "/reports/" + url.PathEscape(id)
	if err := t.doJSON(ctx, "status", http.MethodGet, endpoint, token, nil, &status); err != nil {
		return ReportStatus{}, err
	}
	return status, nil
}

func (t *HTTPTransport) Download(ctx context.Context, token string, downloadURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.downloadClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError("download", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("API request failed: download: %w", err)
	}
	return data, nil
}

func (t *HTTPTransport) doJSON(ctx context.Context, op, method, endpoint, token string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.controlClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("API request failed: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(op, resp)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("API request failed: %s: %w", op, err)
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("API request failed: %s: invalid JSON response: %w", op, err)
	}
	return nil
}

func newHTTPError(op string, resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
