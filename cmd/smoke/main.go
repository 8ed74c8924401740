package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase      string
	token        string
	days         int
	client       = &http.Client{Timeout: 10 * time.Minute}
	importedFile string
)

func main() {
	fmt.Println("=== CDR Hub E2E Smoke Test ===")
	fmt.Println()

	apiBase = strings.TrimRight(getEnv("API_BASE_URL", defaultAPIBase), "/")
	token = getEnv("SMOKE_WEBEX_TOKEN", "smoke-token")
	days, _ = strconv.Atoi(getEnv("SMOKE_DAYS", "1"))
	if days < 1 {
		days = 1
	}

	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Printf("Token: %s\n", maskString(token))
	fmt.Printf("Days: %d\n", days)
	fmt.Println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Import without token is rejected", testImportMissingToken},
		{"Import CDR report", testImportReport},
		{"List imports", testListImports},
		{"Metrics", testMetrics},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}

	fmt.Println("✅ ALL SMOKE TESTS PASSED")
}

func testHealthz() error {
	resp, err := client.Get(apiBase + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return expectStatus(resp, http.StatusOK)
}

func testImportMissingToken() error {
	req, err := http.NewRequest("POST", apiBase+"/v1/cdr/imports", strings.NewReader(`{"days":1}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return expectStatus(resp, http.StatusBadRequest)
}

func testImportReport() error {
	body, err := json.Marshal(map[string]interface{}{"days": days})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", apiBase+"/v1/cdr/imports", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return err
	}

	var result struct {
		Success       bool   `json:"success"`
		Filename      string `json:"filename"`
		TotalLines    int    `json:"total_lines"`
		DaysRequested int    `json:"days_requested"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if !result.Success || result.Filename == "" {
		return fmt.Errorf("unexpected result: %+v", result)
	}
	if result.DaysRequested != days {
		return fmt.Errorf("days_requested=%d, want %d", result.DaysRequested, days)
	}

	importedFile = result.Filename
	fmt.Printf("(%s, %d lines) ", result.Filename, result.TotalLines)
	return nil
}

func testListImports() error {
	resp, err := client.Get(apiBase + "/v1/cdr/imports")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var result struct {
		Imports []struct {
			Filename string `json:"filename"`
		} `json:"imports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	for _, imp := range result.Imports {
		if imp.Filename == importedFile {
			return nil
		}
	}
	return fmt.Errorf("imported file %s not found in %d imports", importedFile, len(result.Imports))
}

func testMetrics() error {
	resp, err := client.Get(apiBase + "/metrics")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if !strings.Contains(string(body), "cdr_fetch_total") {
		return fmt.Errorf("cdr_fetch_total not exported")
	}
	return nil
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
