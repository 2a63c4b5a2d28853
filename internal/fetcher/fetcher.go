// Package fetcher defines the page transport used by harvesters and the
// politeness layer that wraps every concrete transport.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request describes a single page fetch.
type Request struct {
	URL     string
	Headers http.Header
	// Render asks for a JavaScript-capable transport.
	Render bool
}

// Response is the raw result of a fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher retrieves raw page content.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, req Request) (Response, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ErrDisallowed is returned when robots rules forbid the URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// TransientError marks a failure that may succeed on a later run: network
// errors, timeouts, throttling, server errors and blocked destinations.
type TransientError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *TransientError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("transient fetch error %s: %s: %v", e.URL, e.Reason, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transient fetch error %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	default:
		return fmt.Sprintf("transient fetch error %s: %s", e.URL, e.Reason)
	}
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusError reports a non-retryable HTTP status such as 404.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Detector reports whether a plainly fetched page needs JavaScript rendering.
type Detector interface {
	NeedsRender(resp Response) bool
}

// Router sends rendering requests to a headless transport and the rest to a
// plain one. Plain responses the Detector flags are re-fetched headless.
type Router struct {
	Plain    Fetcher
	Headless Fetcher
	Detector Detector
}

// Fetch implements Fetcher.
func (r Router) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.Render && r.Headless != nil {
		return r.Headless.Fetch(ctx, req)
	}
	if r.Plain == nil {
		return Response{}, fmt.Errorf("no fetcher configured for %s", req.URL)
	}
	resp, err := r.Plain.Fetch(ctx, req)
	if err != nil || r.Headless == nil || r.Detector == nil || !r.Detector.NeedsRender(resp) {
		return resp, err
	}
	req.Render = true
	return r.Headless.Fetch(ctx, req)
}
