package transport

import (
	"net/http"

	"github.com/angeloszaimis/failover/internal/endpoint"
	"github.com/angeloszaimis/failover/internal/failover"
)

// Request adapts an *http.Request to failover.Request.
type Request struct {
	req     *http.Request
	bodyErr error
}

func NewRequest(req *http.Request) *Request {
	return &Request{req: req}
}

// Endpoint returns the host and port the request URL resolves to.
func (r *Request) Endpoint() endpoint.Endpoint {
	return endpoint.FromURL(r.req.URL)
}

// WithEndpoint clones the request onto e. The body is reopened through
// GetBody so every clone can be sent independently.
func (r *Request) WithEndpoint(e endpoint.Endpoint) failover.Request {
	next := r.req.Clone(r.req.Context())
	next.URL = e.ApplyTo(r.req.URL)
	next.Host = next.URL.Host

	clone := &Request{req: next}

	if r.req.GetBody != nil {
		body, err := r.req.GetBody()
		if err != nil {
			clone.bodyErr = err
		} else {
			next.Body = body
		}
	}

	return clone
}

// HTTPRequest returns the underlying request.
func (r *Request) HTTPRequest() *http.Request {
	return r.req
}

// Response adapts an *http.Response to failover.Response.
type Response struct {
	resp *http.Response
}

// NewResponse wraps resp. A nil resp yields a nil failover.Response so the
// decider sees "no response".
func NewResponse(resp *http.Response) failover.Response {
	if resp == nil {
		return nil
	}
	return &Response{resp: resp}
}

func (r *Response) Successful() bool {
	return r.resp.StatusCode >= 200 && r.resp.StatusCode < 300
}

func (r *Response) StatusCode() int {
	return r.resp.StatusCode
}
