package failover

import "github.com/angeloszaimis/failover/internal/endpoint"

// Request is an outbound request that can be retargeted.
type Request interface {
	// Endpoint returns the endpoint the request is addressed to.
	Endpoint() endpoint.Endpoint
	// WithEndpoint returns a copy of the request addressed to e. Method,
	// path, headers and body are preserved.
	WithEndpoint(e endpoint.Endpoint) Request
}

// Response is the outcome of an attempt. A nil Response means no response
// was received.
type Response interface {
	Successful() bool
	StatusCode() int
}

// Listener is notified about blacklist transitions. Implementations must
// not block.
type Listener interface {
	OnBlacklisted(e endpoint.Endpoint)
	OnRecovered(e endpoint.Endpoint)
	OnExhausted(initial endpoint.Endpoint)
}

type nopListener struct{}

func (nopListener) OnBlacklisted(endpoint.Endpoint) {}
func (nopListener) OnRecovered(endpoint.Endpoint)   {}
func (nopListener) OnExhausted(endpoint.Endpoint)   {}
