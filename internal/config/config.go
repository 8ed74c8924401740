package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	WebexModeHTTP = "http"
	WebexModeMock = "mock"
)

const (
	PollStrategyFixed       = "fixed"
	PollStrategyExponential = "exponential"
)

const (
	DefaultWebexAPIBaseURL = "https://webexapis.com/v1"
	DefaultOutputDir       = "data/cdr_imports"
)

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) Diagnostics() (level string, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == ""

	if allEmpty {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return "INFO", "s3_ready", "ready"
}

// DiagnosticsSummary returns a detailed summary for logging (no secrets)
func (c S3Config) DiagnosticsSummary() string {
	return fmt.Sprintf("endpoint=%s region=%s bucket=%s prefix=%s access_key_id=%s secret_access_key=%s",
		nonEmptyOrDash(c.Endpoint),
		nonEmptyOrDash(c.Region),
		nonEmptyOrDash(c.Bucket),
		nonEmptyOrDash(c.Prefix),
		SetOrNot(c.AccessKeyID),
		SetOrNot(c.SecretAccessKey),
	)
}

// SetOrNot masks a secret down to "set" / "not set".
func SetOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

type BlobConfig struct {
	Mode      string // local|s3|auto
	OutputDir string // root for local mode
	S3        S3Config
}

// WebexConfig describes how the report API is reached.
type WebexConfig struct {
	Mode                   string // http|mock
	APIBaseURL             string
	ControlTimeoutSeconds  int
	DownloadTimeoutSeconds int
}

// FetchConfig holds the polling defaults of the report fetcher.
type FetchConfig struct {
	PollIntervalSeconds int
	PollTimeoutSeconds  int
	PollStrategy        string // fixed|exponential
	DefaultDays         int
	MaxDays             int // 0 means no upper bound
}

type Config struct {
	Env       string // local | staging | prod
	Port      int
	LogLevel  string
	LogFormat string // console | json

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	Blob  BlobConfig
	Webex WebexConfig
	Fetch FetchConfig
}

// Load reads the configuration from environment variables.
func Load() *Config {
	// APP_ENV (fallback to ENV for backward compat, default: local)
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	port := envInt("PORT", 8080)

	logLevel := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if logFormat != "json" {
		logFormat = "console"
	}

	// ---------- CORS ----------
	corsOrigins := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env)
	corsAllowCreds := parseBoolEnv("CORS_ALLOW_CREDENTIALS")

	// ---------- Rate Limiting ----------
	rateLimitRPS := envInt("RATE_LIMIT_RPS", 0)
	rateLimitBurst := envInt("RATE_LIMIT_BURST", 0)

	// ---------- Blob / S3 ----------
	blobMode := parseEnum("BLOB_MODE", BlobModeLocal, BlobModeLocal, BlobModeS3, BlobModeAuto)
	outputDir := strings.TrimSpace(os.Getenv("CDR_OUTPUT_DIR"))
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}

	s3Prefix := strings.Trim(strings.TrimSpace(os.Getenv("S3_PREFIX")), "/")
	if s3Prefix == "" {
		s3Prefix = "cdr_imports"
	}

	blobCfg := BlobConfig{
		Mode:      blobMode,
		OutputDir: outputDir,
		S3: S3Config{
			Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:          strings.TrimSpace(os.Getenv("S3_REGION")),
			Bucket:          strings.TrimSpace(os.Getenv("S3_BUCKET")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			Prefix:          s3Prefix,
		},
	}

	// ---------- Webex ----------
	webexMode := parseEnum("WEBEX_MODE", WebexModeHTTP, WebexModeHTTP, WebexModeMock)
	apiBase := strings.TrimRight(strings.TrimSpace(os.Getenv("WEBEX_API_BASE_URL")), "/")
	if apiBase == "" {
		apiBase = DefaultWebexAPIBaseURL
	}

	webexCfg := WebexConfig{
		Mode:                   webexMode,
		APIBaseURL:             apiBase,
		ControlTimeoutSeconds:  envPositiveInt("WEBEX_CONTROL_TIMEOUT_SECONDS", 30),
		DownloadTimeoutSeconds: envPositiveInt("WEBEX_DOWNLOAD_TIMEOUT_SECONDS", 60),
	}

	// ---------- Fetch ----------
	fetchCfg := FetchConfig{
		PollIntervalSeconds: envPositiveInt("CDR_POLL_INTERVAL_SECONDS", 5),
		PollTimeoutSeconds:  envPositiveInt("CDR_POLL_TIMEOUT_SECONDS", 300),
		PollStrategy:        parseEnum("CDR_POLL_STRATEGY", PollStrategyFixed, PollStrategyFixed, PollStrategyExponential),
		DefaultDays:         envPositiveInt("CDR_DEFAULT_DAYS", 1),
		MaxDays:             envPositiveInt("CDR_MAX_DAYS", 0),
	}
	if fetchCfg.MaxDays > 0 && fetchCfg.DefaultDays > fetchCfg.MaxDays {
		log.Printf("WARNING: CDR_DEFAULT_DAYS=%d exceeds CDR_MAX_DAYS=%d, clamping", fetchCfg.DefaultDays, fetchCfg.MaxDays)
		fetchCfg.DefaultDays = fetchCfg.MaxDays
	}

	return &Config{
		Env:       env,
		Port:      port,
		LogLevel:  logLevel,
		LogFormat: logFormat,

		CORSAllowedOrigins:   corsOrigins,
		CORSAllowCredentials: corsAllowCreds,

		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		Blob:  blobCfg,
		Webex: webexCfg,
		Fetch: fetchCfg,
	}
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:5173"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func parseEnum(key string, defaultVal string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	log.Printf("WARNING: unknown %s=%q, fallback to %s", key, v, defaultVal)
	return defaultVal
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func envPositiveInt(key string, defaultVal int) int {
	v := envInt(key, defaultVal)
	if v <= 0 {
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
