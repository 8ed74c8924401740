package cdr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fdg312/cdr-hub/internal/blob"
)

// defaultImportHoursBack is the window imported when a request names neither
// days nor hours_back.
const defaultImportHoursBack = 48

// Handlers exposes the fetcher over HTTP.
type Handlers struct {
	fetcher *Fetcher
}

func NewHandlers(fetcher *Fetcher) *Handlers {
	return &Handlers{fetcher: fetcher}
}

// HandleImport handles POST /v1/cdr/imports. The upstream token comes from
// the Authorization header or, failing that, the body. The request blocks
// until the report is saved or the fetch fails.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_token", "A Webex bearer token is required")
		return
	}

	if req.Days < 0 || req.HoursBack < 0 {
		writeError(w, http.StatusBadRequest, "invalid_days", "days and hours_back must be positive")
		return
	}
	days := req.Days
	if days == 0 {
		hours := req.HoursBack
		if hours == 0 {
			hours = defaultImportHoursBack
		}
		days = hoursToDays(hours)
	}

	result := h.fetcher.Fetch(r.Context(), FetchRequest{Token: token, Days: days})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(result))
	json.NewEncoder(w).Encode(result)
}

// HandleHistory handles GET /v1/cdr/imports
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.fetcher.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{Imports: entries})
}

// HandleDownload handles GET /v1/cdr/imports/{filename}
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	content, err := h.fetcher.Open(r.Context(), filename)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidFilename):
			writeError(w, http.StatusBadRequest, "invalid_filename", err.Error())
		case errors.Is(err, blob.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Report not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", contentTypeCSV)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func statusFor(res Result) int {
	if res.Success {
		return http.StatusCreated
	}
	switch res.ErrorType {
	case KindUsage, KindInvalidRequest:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindStorage:
		return http.StatusInternalServerError
	case KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// hoursToDays rounds up: 25 hours needs a two-day report.
func hoursToDays(hours int) int {
	return (hours + 23) / 24
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
