package audit

import (
	"math/rand/v2"
	"strings"
	"time"
)

// retryConfig controls exponential backoff on transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	jitterPct  float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{maxRetries: 5, baseDelay: 25 * time.Millisecond, jitterPct: 0.25}
}

// retryOnBusy retries fn on "database is locked" errors with exponential
// backoff and jitter. Non-lock errors return immediately.
func retryOnBusy(fn func() error) error {
	return retryOnBusyInternal(defaultRetryConfig(), fn, time.Sleep)
}

func retryOnBusyInternal(cfg retryConfig, fn func() error, sleepFn func(time.Duration)) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isDBLocked(err) {
		return err
	}

	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		delay := cfg.baseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * cfg.jitterPct)
		sleepFn(delay + jitter)

		err = fn()
		if err == nil {
			return nil
		}
		if !isDBLocked(err) {
			return err
		}
	}
	return err
}

func isDBLocked(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}
