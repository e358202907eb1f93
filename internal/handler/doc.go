// Package handler implements the reverse-proxy front end. Incoming requests
// are addressed to the primary endpoint and sent through the failover
// transport, which moves them to another endpoint when the primary fails.
package handler
