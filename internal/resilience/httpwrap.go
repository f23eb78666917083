// Package resilience guards calls to remote collaborators with retries,
// per-attempt timeouts and a circuit breaker.
package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StatusError reports an upstream response that stayed 5xx after every attempt.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker
// logic. Retry delays grow exponentially from BaseBackoff with Jitter as the
// randomization factor (0.2 == +/-20%).
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes the request applying retry semantics. Responses below 500 are
// returned to the caller as-is; transport errors and 5xx responses are
// retried. The request body is buffered so it can be replayed. When the
// breaker refuses an attempt ErrOpenCircuit is returned without calling
// upstream, joined with the previous attempt's error if there was one.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := max(cl.MaxAttempts, 1)
	delays := cl.backoff()

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		done, err := cl.allow()
		if err != nil {
			return nil, errors.Join(err, lastErr)
		}
		resp, err := cl.doOnce(ctx, cloneRequest(ctx, req, body))
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			done(true)
			return resp, nil
		}
		if err == nil {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		done(false)
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(delays.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) allow() (func(bool), error) {
	if cl.Breaker == nil {
		return func(bool) {}, nil
	}
	return cl.Breaker.Allow()
}

func (cl HTTPClient) backoff() *backoff.ExponentialBackOff {
	base := cl.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: cl.Jitter,
		Multiplier:          2,
		MaxInterval:         base << 5,
	}
	b.Reset()
	return b
}

// doOnce runs a single attempt. The attempt's timeout context must outlive
// the call because the caller still reads the body, so it is released when
// the body is closed.
func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	return data, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return clone
}
