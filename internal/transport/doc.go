// Package transport drives a failover.Decider over net/http. Transport is an
// http.RoundTripper that resends a request to the endpoint chosen by the
// decider until it gets a usable response, the pool is exhausted or the
// attempt limit is reached.
package transport
