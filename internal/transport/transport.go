package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/angeloszaimis/failover/internal/endpoint"
	"github.com/angeloszaimis/failover/internal/failover"
)

var (
	ErrNoViableTarget  = errors.New("no viable failover target configured")
	ErrExhausted       = errors.New("every failover target is blacklisted")
	ErrTooManyAttempts = errors.New("failover attempts exceeded")
)

const drainLimit = 4 << 10

// Decider is the failover policy consulted between attempts.
type Decider interface {
	IsRequestViable(req failover.Request) bool
	MarkRequestFailed(req failover.Request)
	ComputeNextStage(prev failover.Request, resp failover.Response) (failover.Request, bool)
}

// AttemptObserver is told about every attempt. statusCode is zero when err
// is set.
type AttemptObserver interface {
	ObserveAttempt(e endpoint.Endpoint, statusCode int, duration time.Duration, err error)
}

type Options struct {
	Decider Decider
	// Base sends individual attempts. Defaults to NewHTTPTransport().
	Base http.RoundTripper
	// MaxAttempts bounds the attempts for one logical request, including
	// the first. Values below 1 mean 1.
	MaxAttempts int
	// RetryLimiter paces retries; first attempts are never delayed.
	// Nil means unlimited.
	RetryLimiter *rate.Limiter
	Observer     AttemptObserver
	Logger       *slog.Logger
}

type Transport struct {
	decider     Decider
	base        http.RoundTripper
	maxAttempts int
	limiter     *rate.Limiter
	observer    AttemptObserver
	logger      *slog.Logger
}

func New(opts Options) *Transport {
	t := &Transport{
		decider:     opts.Decider,
		base:        opts.Base,
		maxAttempts: opts.MaxAttempts,
		limiter:     opts.RetryLimiter,
		observer:    opts.Observer,
		logger:      opts.Logger,
	}

	if t.base == nil {
		t.base = NewHTTPTransport()
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	if t.limiter == nil {
		t.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if t.observer == nil {
		t.observer = nopObserver{}
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return t
}

// NewHTTPTransport returns the *http.Transport used for single attempts.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// RoundTrip sends req, failing over between endpoints as the decider
// directs. A successful or 404 response is returned as soon as it arrives.
// When the attempt limit is reached the last response is returned if there
// is one.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	var current failover.Request = NewRequest(req)

	if !t.decider.IsRequestViable(current) {
		return nil, ErrNoViableTarget
	}

	var lastErr error

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for retry budget: %w", err)
			}
		}

		out, err := httpRequest(current)
		if err != nil {
			return nil, err
		}

		target := current.Endpoint()
		start := time.Now()
		resp, err := t.base.RoundTrip(out)
		elapsed := time.Since(start)

		var previous failover.Response

		if err != nil {
			t.observer.ObserveAttempt(target, 0, elapsed, err)

			// The caller gave up; the endpoint is not to blame.
			if ctx.Err() != nil {
				return nil, err
			}

			t.logger.Debug("Attempt failed",
				slog.String("endpoint", target.String()),
				slog.Int("attempt", attempt),
				slog.Any("err", err))

			t.decider.MarkRequestFailed(current)
			lastErr = err
		} else {
			t.observer.ObserveAttempt(target, resp.StatusCode, elapsed, nil)

			previous = NewResponse(resp)
			if previous.Successful() || resp.StatusCode == http.StatusNotFound {
				return resp, nil
			}

			t.logger.Debug("Attempt returned failure status",
				slog.String("endpoint", target.String()),
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode))

			lastErr = fmt.Errorf("%s responded %s", target, resp.Status)
		}

		next, ok := t.decider.ComputeNextStage(current, previous)
		if !ok {
			discard(resp)
			t.logger.Warn("All failover targets are blacklisted",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("attempts", attempt))
			return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
		}

		if attempt >= t.maxAttempts {
			if resp != nil {
				return resp, nil
			}
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrTooManyAttempts, attempt, lastErr)
		}

		discard(resp)
		current = next
	}
}

// rewindable makes sure every attempt can resend the body. Bodies without
// GetBody are buffered once.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	payload, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(payload))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	clone.ContentLength = int64(len(payload))

	return clone, nil
}

func httpRequest(req failover.Request) (*http.Request, error) {
	r, ok := req.(*Request)
	if !ok {
		return nil, fmt.Errorf("unexpected failover request type %T", req)
	}

	if r.bodyErr != nil {
		return nil, fmt.Errorf("reopening request body: %w", r.bodyErr)
	}

	return r.HTTPRequest(), nil
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(endpoint.Endpoint, int, time.Duration, error) {}
