// Package endpoint defines the host and port pair that identifies one backend
// instance in a failover pool, along with helpers to resolve it from URLs.
package endpoint
