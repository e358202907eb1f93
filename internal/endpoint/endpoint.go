package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint identifies a backend instance by host and port.
// It is comparable and safe to use as a map key.
type Endpoint struct {
	Host string
	Port int
}

// New returns an Endpoint for the given host and port.
func New(host string, port int) Endpoint {
	return Endpoint{Host: strings.ToLower(host), Port: port}
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Parse parses a host:port pair.
func Parse(hostPort string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(hostPort))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w %q: %v", ErrInvalidEndpoint, hostPort, err)
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("%w %q: empty host", ErrInvalidEndpoint, hostPort)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w %q: port must be between 1 and 65535", ErrInvalidEndpoint, hostPort)
	}

	return New(host, port), nil
}

// ParseList parses every entry in order and stops at the first invalid one.
func ParseList(hostPorts []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(hostPorts))

	for _, hp := range hostPorts {
		e, err := Parse(hp)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}

	return endpoints, nil
}

// FromURL resolves the endpoint a client would dial for u. When the URL has
// no explicit port the scheme default is used.
func FromURL(u *url.URL) Endpoint {
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		port = defaultPort(u.Scheme)
	}

	return New(u.Hostname(), port)
}

// ApplyTo returns a copy of u targeting e. All other URL fields are kept.
func (e Endpoint) ApplyTo(u *url.URL) *url.URL {
	next := *u
	if u.User != nil {
		user := *u.User
		next.User = &user
	}
	next.Host = e.String()
	return &next
}

func defaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return 443
	default:
		return 80
	}
}
