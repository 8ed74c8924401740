package cdr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fdg312/cdr-hub/internal/config"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 300 * time.Second
	maxPollInterval     = 60 * time.Second
)

// WaitPolicy produces a fresh backoff for every fetch, since BackOff values
// carry state between polls.
type WaitPolicy func() backoff.BackOff

// FixedWait polls at a constant interval.
func FixedWait(interval time.Duration) WaitPolicy {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(interval)
	}
}

// ExponentialWait starts at interval and doubles up to a minute. It never
// gives up on its own; the fetcher owns the deadline.
func ExponentialWait(interval time.Duration) WaitPolicy {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = interval
		b.MaxInterval = maxPollInterval
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

// NewWaitPolicy picks a policy by strategy name; anything but "exponential"
// polls at a fixed interval.
func NewWaitPolicy(strategy string, interval time.Duration) WaitPolicy {
	if strategy == config.PollStrategyExponential {
		return ExponentialWait(interval)
	}
	return FixedWait(interval)
}

// WaitPolicyFromConfig maps CDR_POLL_STRATEGY onto a policy.
func WaitPolicyFromConfig(cfg config.FetchConfig) WaitPolicy {
	return NewWaitPolicy(cfg.PollStrategy, time.Duration(cfg.PollIntervalSeconds)*time.Second)
}

// ConfigOptions returns the fetcher options driven by configuration.
func ConfigOptions(cfg config.FetchConfig) []Option {
	return []Option{
		WithWaitPolicy(WaitPolicyFromConfig(cfg)),
		WithPollTimeout(time.Duration(cfg.PollTimeoutSeconds) * time.Second),
		WithDays(cfg.DefaultDays, cfg.MaxDays),
	}
}

// nextDelay never returns backoff.Stop; a stopped policy degrades to the
// default interval.
func nextDelay(b backoff.BackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop || d < 0 {
		return DefaultPollInterval
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
