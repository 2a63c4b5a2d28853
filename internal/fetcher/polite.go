package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/entity-harvester/internal/policy/robots"
	"github.com/JakeFAU/entity-harvester/internal/progress"
)

// Pacer delays a request to a destination. ratelimit.Controller satisfies it.
type Pacer interface {
	Wait(ctx context.Context, destination string)
}

// Identity supplies per-request headers. profile.Profile satisfies it.
type Identity interface {
	HTTPHeader() http.Header
}

// PoliteConfig wires the politeness collaborators. Nil fields are skipped.
type PoliteConfig struct {
	Pacer    Pacer
	Robots   robots.Policy
	Identity Identity
	Blocker  *Blocker
	Events   progress.Emitter
	Logger   *zap.Logger
}

// Polite applies blocking, robots rules, pacing and a request identity before
// delegating to the wrapped transport, and classifies the outcome.
type Polite struct {
	next Fetcher
	cfg  PoliteConfig
}

// NewPolite wraps next.
func NewPolite(next Fetcher, cfg PoliteConfig) *Polite {
	if cfg.Robots == nil {
		cfg.Robots = robots.AllowAll{}
	}
	if cfg.Events == nil {
		cfg.Events = progress.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Polite{next: next, cfg: cfg}
}

// Fetch implements Fetcher.
func (p *Polite) Fetch(ctx context.Context, req Request) (Response, error) {
	dest := ratelimit.Destination(req.URL)
	if p.cfg.Blocker.IsBlocked(dest) {
		return Response{}, &TransientError{URL: req.URL, Reason: "destination blocked"}
	}
	if !p.cfg.Robots.Allowed(ctx, req.URL) {
		return Response{}, fmt.Errorf("fetch %s: %w", req.URL, ErrDisallowed)
	}
	if p.cfg.Pacer != nil {
		p.cfg.Pacer.Wait(ctx, dest)
	}
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	req.Headers = p.headers(req.Headers)
	start := time.Now()
	resp, err := p.next.Fetch(ctx, req)
	p.emit(ctx, req.URL, dest, resp, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("fetch %s: %w", req.URL, errors.Join(ctxErr, err))
		}
		return Response{}, &TransientError{URL: req.URL, Reason: "network error", Err: err}
	}
	return resp, p.classify(req.URL, dest, resp.StatusCode)
}

func (p *Polite) classify(url, dest string, status int) error {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		if p.cfg.Blocker.MarkForbidden(dest) {
			p.cfg.Logger.Warn("destination blocked after repeated refusals",
				zap.String("destination", dest),
				zap.Int("status", status),
			)
		}
	}
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests:
		return &TransientError{URL: url, StatusCode: status, Reason: "throttled"}
	case status >= 500:
		return &TransientError{URL: url, StatusCode: status, Reason: "server error"}
	default:
		return &StatusError{URL: url, StatusCode: status}
	}
}

func (p *Polite) headers(extra http.Header) http.Header {
	out := http.Header{}
	if p.cfg.Identity != nil {
		for k, v := range p.cfg.Identity.HTTPHeader() {
			out[k] = append([]string(nil), v...)
		}
	}
	for k, v := range extra {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (p *Polite) emit(ctx context.Context, url, dest string, resp Response, dur time.Duration) {
	job, ok := progress.JobFromContext(ctx)
	if !ok {
		return
	}
	p.cfg.Events.Emit(progress.Event{
		JobID:       job.ID,
		HarvesterID: job.HarvesterID,
		Entity:      job.Entity,
		TS:          time.Now().UTC(),
		Stage:       progress.StageFetchDone,
		Site:        dest,
		URL:         url,
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Bytes:       int64(len(resp.Body)),
		Dur:         dur,
	})
}
