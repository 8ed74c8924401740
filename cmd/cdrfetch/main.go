package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fdg312/cdr-hub/internal/blob"
	"github.com/fdg312/cdr-hub/internal/cdr"
	"github.com/fdg312/cdr-hub/internal/config"
	"github.com/fdg312/cdr-hub/internal/logging"
	"github.com/fdg312/cdr-hub/internal/webex"
)

const (
	exitFailure = 1
	exitUsage   = 2

	resultPrefix = "JSON_RESULT: "
	usageLine    = "Usage: cdrfetch [flags] <token> [days]"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)

	err := app.Run(args)
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return exitErr.ExitCode()
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cdrfetch",
		Usage:     "request a Webex CDR report, wait for it and save the CSV",
		ArgsUsage: "<token> [days]",
		Writer:    stdout,
		ErrWriter: stderr,
		// exit codes are turned into a return value by run
		ExitErrHandler:  func(*cli.Context, error) {},
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "seconds to wait for the report before giving up (default: CDR_POLL_TIMEOUT_SECONDS)",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "delay between status checks (default: CDR_POLL_INTERVAL_SECONDS)",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "directory for saved reports in local mode (default: CDR_OUTPUT_DIR)",
			},
			&cli.StringFlag{
				Name:  "blob-mode",
				Usage: "where reports are saved: local, s3 or auto (default: BLOB_MODE)",
			},
			&cli.StringFlag{
				Name:  "webex-mode",
				Usage: "http or mock (default: WEBEX_MODE)",
			},
			&cli.StringFlag{
				Name:  "api-base-url",
				Usage: "report API base URL (default: WEBEX_API_BASE_URL)",
			},
		},
		Action: fetchAction(stdout),
	}
}

func fetchAction(stdout io.Writer) cli.ActionFunc {
	return func(c *cli.Context) error {
		token := strings.TrimSpace(c.Args().Get(0))
		if token == "" {
			return cli.Exit(usageLine, exitUsage)
		}

		days := 0
		if raw := c.Args().Get(1); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return cli.Exit(fmt.Sprintf("days must be a positive integer, got %q\n%s", raw, usageLine), exitUsage)
			}
			days = n
		}

		cfg := config.Load()
		if err := applyFlags(c, cfg); err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}

		logger, err := logging.New(cfg, "cdrfetch")
		if err != nil {
			return cli.Exit(fmt.Sprintf("logger init failed: %v", err), exitFailure)
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		result := fetch(ctx, cfg, c, logger, token, days)
		if err := printResult(stdout, result); err != nil {
			return cli.Exit(fmt.Sprintf("failed to write result: %v", err), exitFailure)
		}
		if !result.Success {
			return cli.Exit("", exitFailure)
		}
		return nil
	}
}

func fetch(ctx context.Context, cfg *config.Config, c *cli.Context, logger *zap.Logger, token string, days int) cdr.Result {
	store, mode, err := blob.NewBlobStore(cfg.Blob, logging.StdLogger(logger))
	if err != nil {
		return cdr.Result{
			Error:     err.Error(),
			ErrorType: cdr.KindStorage,
			Err:       err,
		}
	}

	opts := append(cdr.ConfigOptions(cfg.Fetch),
		cdr.WithLogger(logger),
		cdr.WithStorageMode(mode),
	)
	if c.IsSet("poll-interval") {
		opts = append(opts, cdr.WithWaitPolicy(cdr.NewWaitPolicy(cfg.Fetch.PollStrategy, c.Duration("poll-interval"))))
	}

	fetcher := cdr.NewFetcher(webex.NewTransport(cfg.Webex), store, opts...)

	return fetcher.Fetch(ctx, cdr.FetchRequest{
		Token:   token,
		Days:    days,
		Timeout: time.Duration(cfg.Fetch.PollTimeoutSeconds) * time.Second,
	})
}

// applyFlags layers command-line overrides on top of the environment.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("timeout") {
		if c.Int("timeout") <= 0 {
			return fmt.Errorf("--timeout must be positive")
		}
		cfg.Fetch.PollTimeoutSeconds = c.Int("timeout")
	}
	if c.IsSet("poll-interval") && c.Duration("poll-interval") <= 0 {
		return fmt.Errorf("--poll-interval must be positive")
	}
	if dir := strings.TrimSpace(c.String("output-dir")); dir != "" {
		cfg.Blob.OutputDir = dir
	}
	if c.IsSet("blob-mode") {
		mode, err := oneOf("--blob-mode", c.String("blob-mode"), config.BlobModeLocal, config.BlobModeS3, config.BlobModeAuto)
		if err != nil {
			return err
		}
		cfg.Blob.Mode = mode
	}
	if c.IsSet("webex-mode") {
		mode, err := oneOf("--webex-mode", c.String("webex-mode"), config.WebexModeHTTP, config.WebexModeMock)
		if err != nil {
			return err
		}
		cfg.Webex.Mode = mode
	}
	if base := strings.TrimRight(strings.TrimSpace(c.String("api-base-url")), "/"); base != "" {
		cfg.Webex.APIBaseURL = base
	}
	return nil
}

func oneOf(flag, value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %s, got %q", flag, strings.Join(allowed, "|"), value)
}

func printResult(w io.Writer, result cdr.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n", resultPrefix, data)
	return err
}
