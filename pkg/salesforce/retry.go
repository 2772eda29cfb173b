package salesforce

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// statusError is a non-2xx query response.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

// retryConfig controls exponential backoff between query attempts.
type retryConfig struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitterFraction float64
}

// defaultRetryConfig performs a single attempt: remote failures propagate to
// the caller and abort the run. WithRetryAttempts opts in to retries.
func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts:    1,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
		multiplier:     2.0,
		jitterFraction: 0.25,
	}
}

// retry runs fn, retrying transient failures with exponential backoff and
// jitter when cfg allows more than one attempt. Context cancellation stops
// retries immediately.
func retry[T any](ctx context.Context, cfg retryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isTransient(err) || attempt >= cfg.maxAttempts-1 {
			break
		}

		zap.L().Warn("sf: transient query failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func backoff(attempt int, cfg retryConfig) time.Duration {
	d := float64(cfg.initialBackoff) * math.Pow(cfg.multiplier, float64(attempt))
	if d > float64(cfg.maxBackoff) {
		d = float64(cfg.maxBackoff)
	}
	if cfg.jitterFraction > 0 {
		d += d * cfg.jitterFraction * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// isTransient reports whether an error is worth retrying: a 429 or 5xx
// response, a network timeout, or a dropped connection.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"tls handshake timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
