package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Client wraps an http.Client with a per-call timeout and a circuit breaker.
// Each call is attempted exactly once; retrying is left to the backend's
// callers.
type Client struct {
	HTTP    *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do executes req. Transport errors and 5xx responses count as breaker
// failures; 5xx responses are still returned to the caller for decoding.
func (c Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.HTTP == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if c.Breaker != nil && !c.Breaker.Allow(ctx) {
		return nil, ErrOpenCircuit
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	start := time.Now()
	resp, err := c.HTTP.Do(req.WithContext(callCtx))
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case resp.StatusCode >= http.StatusInternalServerError:
		result = "server_error"
	}
	CallDuration.WithLabelValues(c.target(), result).Observe(float64(time.Since(start)) / float64(time.Millisecond))
	if c.Breaker != nil {
		c.Breaker.Report(ctx, result == "ok")
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c Client) target() string {
	if c.Breaker == nil {
		return "backend"
	}
	return c.Breaker.targetLabel()
}

// cancelOnClose releases the call's timeout context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
