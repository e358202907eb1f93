package handler

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/angeloszaimis/failover/internal/endpoint"
	"github.com/angeloszaimis/failover/internal/transport"
)

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderBackendServer = "X-Backend-Server"
)

type FailoverHandler struct {
	logger    *slog.Logger
	transport http.RoundTripper
	primary   endpoint.Endpoint
	scheme    string
}

func NewFailoverHandler(logger *slog.Logger, rt http.RoundTripper, primary endpoint.Endpoint, scheme string) *FailoverHandler {
	if scheme == "" {
		scheme = "http"
	}

	return &FailoverHandler{
		logger:    logger,
		transport: rt,
		primary:   primary,
		scheme:    scheme,
	}
}

func (h *FailoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log := h.logger.With(slog.String("request_id", requestID))

	log.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host))

	outReq, err := h.buildUpstreamRequest(r, clientIP, requestID)
	if err != nil {
		log.Error("Failed to build upstream request", slog.Any("err", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	resp, err := h.transport.RoundTrip(outReq)
	if err != nil {
		status := statusForError(err)
		log.Warn("Request failed on every endpoint",
			slog.String("client", clientIP),
			slog.Int("status", status),
			slog.Any("err", err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer resp.Body.Close()

	backend := h.primary.String()
	if resp.Request != nil && resp.Request.URL != nil {
		backend = resp.Request.URL.Host
	}

	log.Info("Forwarded to backend",
		slog.String("client", clientIP),
		slog.String("backend", backend),
		slog.Int("status", resp.StatusCode))

	copyHeaders(w.Header(), resp.Header)
	removeHopByHopHeaders(w.Header())
	w.Header().Set(HeaderBackendServer, backend)
	w.Header().Set(HeaderRequestID, requestID)

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (h *FailoverHandler) buildUpstreamRequest(in *http.Request, clientIP, requestID string) (*http.Request, error) {
	target := &url.URL{
		Scheme:   h.scheme,
		Host:     h.primary.String(),
		Path:     in.URL.Path,
		RawPath:  in.URL.RawPath,
		RawQuery: in.URL.RawQuery,
	}

	body := in.Body
	if in.ContentLength == 0 {
		body = http.NoBody
	}

	outReq, err := http.NewRequestWithContext(in.Context(), in.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = in.ContentLength

	copyHeaders(outReq.Header, in.Header)
	removeHopByHopHeaders(outReq.Header)

	outReq.Header.Set(HeaderRequestID, requestID)
	if clientIP != "" {
		if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
			outReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			outReq.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	if in.Host != "" {
		outReq.Header.Set("X-Forwarded-Host", in.Host)
	}

	return outReq, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, transport.ErrExhausted), errors.Is(err, transport.ErrNoViableTarget):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func extractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		k = textproto.CanonicalMIMEHeaderKey(k)
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func removeHopByHopHeaders(h http.Header) {
	if c := h.Get("Connection"); c != "" {
		for _, f := range strings.Split(c, ",") {
			if name := strings.TrimSpace(f); name != "" {
				h.Del(name)
			}
		}
	}
	h.Del("Connection")
	h.Del("Proxy-Connection")
	h.Del("Keep-Alive")
	h.Del("Proxy-Authenticate")
	h.Del("Proxy-Authorization")
	h.Del("TE")
	h.Del("Trailer")
	h.Del("Transfer-Encoding")
	h.Del("Upgrade")
}
