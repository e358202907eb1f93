package failover

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/failover/internal/endpoint"
)

type Option func(*Decider)

// WithClock overrides the time source used for blacklist timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Decider) {
		if now != nil {
			d.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Decider) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithListener(listener Listener) Option {
	return func(d *Decider) {
		if listener != nil {
			d.listener = listener
		}
	}
}

// Decider blacklists failing endpoints and picks the next target for a
// retried request. It is safe for concurrent use.
type Decider struct {
	targets  []endpoint.Endpoint
	cooldown time.Duration

	mutex     sync.Mutex
	blacklist map[endpoint.Endpoint]time.Time

	now      func() time.Time
	logger   *slog.Logger
	listener Listener
}

// New creates a Decider over an ordered target pool. A blacklisted endpoint
// becomes eligible again once cooldown has elapsed; a negative cooldown is
// treated as zero.
func New(targets []endpoint.Endpoint, cooldown time.Duration, opts ...Option) *Decider {
	if cooldown < 0 {
		cooldown = 0
	}

	d := &Decider{
		targets:   append([]endpoint.Endpoint(nil), targets...),
		cooldown:  cooldown,
		blacklist: make(map[endpoint.Endpoint]time.Time),
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		listener:  nopListener{},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// IsRequestViable reports whether a first attempt may be sent. It only
// returns false when the target pool is empty; the blacklist is not consulted.
func (d *Decider) IsRequestViable(_ Request) bool {
	return len(d.targets) != 0
}

// MarkRequestFailed blacklists the endpoint of req as of now, replacing any
// earlier timestamp.
func (d *Decider) MarkRequestFailed(req Request) {
	d.markFailed(req.Endpoint())
}

// ComputeNextStage returns the request to send after prev produced resp.
//
// A response counts as a failure when it is present, unsuccessful and not a
// 404. If the endpoint of prev is not blacklisted the same endpoint is
// retried. Otherwise the pool is scanned in order and the first endpoint that
// is not blacklisted, or whose cooldown has elapsed, is chosen. The boolean is
// false when every endpoint is still cooling down.
func (d *Decider) ComputeNextStage(prev Request, resp Response) (Request, bool) {
	initial := prev.Endpoint()

	if isFailure(resp) {
		d.markFailed(initial)
	}

	if !d.IsBlacklisted(initial) {
		return prev.WithEndpoint(initial), true
	}

	next, ok := d.selectTarget()
	if !ok {
		d.logger.Debug("No eligible endpoint left", slog.String("initial", initial.String()))
		d.listener.OnExhausted(initial)
		return nil, false
	}

	d.logger.Debug("Failing over",
		slog.String("from", initial.String()),
		slog.String("to", next.String()))

	return prev.WithEndpoint(next), true
}

// IsBlacklisted reports whether e currently has a blacklist entry. Expired
// entries are only pruned by a pool scan, so an endpoint may still be
// reported after its cooldown has elapsed.
func (d *Decider) IsBlacklisted(e endpoint.Endpoint) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, ok := d.blacklist[e]
	return ok
}

// Targets returns a copy of the target pool in selection order.
func (d *Decider) Targets() []endpoint.Endpoint {
	return append([]endpoint.Endpoint(nil), d.targets...)
}

func (d *Decider) Cooldown() time.Duration {
	return d.cooldown
}

func (d *Decider) markFailed(e endpoint.Endpoint) {
	d.mutex.Lock()
	d.blacklist[e] = d.now()
	d.mutex.Unlock()

	d.logger.Debug("Endpoint blacklisted",
		slog.String("endpoint", e.String()),
		slog.Duration("cooldown", d.cooldown))
	d.listener.OnBlacklisted(e)
}

func (d *Decider) selectTarget() (endpoint.Endpoint, bool) {
	for _, target := range d.targets {
		eligible, recovered := d.tryRecover(target)

		if recovered {
			d.logger.Debug("Endpoint recovered", slog.String("endpoint", target.String()))
			d.listener.OnRecovered(target)
		}

		if eligible {
			return target, true
		}
	}

	return endpoint.Endpoint{}, false
}

// tryRecover reports whether target may be selected, removing its blacklist
// entry when the cooldown has elapsed. The lookup and removal happen under
// one lock so a concurrent re-blacklisting is never discarded.
func (d *Decider) tryRecover(target endpoint.Endpoint) (eligible, recovered bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	blacklistedAt, ok := d.blacklist[target]
	if !ok {
		return true, false
	}

	if d.now().Sub(blacklistedAt) < d.cooldown {
		return false, false
	}

	delete(d.blacklist, target)
	return true, true
}

func isFailure(resp Response) bool {
	return resp != nil && !resp.Successful() && resp.StatusCode() != http.StatusNotFound
}
