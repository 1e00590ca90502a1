package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"graphrag/internal/errs"
)

// withRetry retries fn on TransientExternal errors with exponential backoff,
// per spec §4.6/§7. Non-transient errors surface immediately.
func withRetry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	op := func() (struct{}, error) {
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !errs.Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)
	return err
}

// classifyHTTPError maps a status code and underlying error into the
// engine's error taxonomy (spec §7).
func classifyHTTPError(component string, statusCode int, err error) error {
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return errs.Wrap(errs.TransientExternal, component, "provider request failed", err)
	case statusCode >= 400:
		return errs.Wrap(errs.PermanentExternal, component, "provider request rejected", err)
	case isTimeoutOrNetErr(err):
		return errs.Wrap(errs.TransientExternal, component, "provider request timed out", err)
	default:
		return errs.Wrap(errs.PermanentExternal, component, "provider request failed", err)
	}
}

func isTimeoutOrNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}

// idleTimeoutStream runs read against a fresh per-chunk deadline, failing
// with a StreamIdle error (spec §4.6/§7) if nothing arrives in time.
func idleTimeoutStream(ctx context.Context, idle time.Duration, read func(context.Context) (Chunk, bool, error), onChunk func(Chunk) error) error {
	if idle <= 0 {
		idle = 30 * time.Second
	}
	for {
		type result struct {
			chunk Chunk
			ok    bool
			err   error
		}
		resCh := make(chan result, 1)
		go func() {
			c, ok, err := read(ctx)
			resCh <- result{c, ok, err}
		}()

		select {
		case <-time.After(idle):
			return errs.New(errs.StreamIdle, "llm", "stream chunk idle timeout exceeded")
		case res := <-resCh:
			if res.err != nil {
				return res.err
			}
			if !res.ok {
				return nil
			}
			if err := onChunk(res.chunk); err != nil {
				return err
			}
			if res.chunk.Done {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
