package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/failover/internal/handler"
	"github.com/angeloszaimis/failover/internal/metrics"
)

func setupRouter(failoverHandler *handler.FailoverHandler, collector *metrics.Collector, gatherer prometheus.Gatherer, requestTimeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", withTimeout(requestTimeout, failoverHandler))
	mux.HandleFunc("/stats", collector.Handler())
	mux.Handle("/metrics", metrics.PrometheusHandler(gatherer))

	return mux
}

// withTimeout bounds the whole failover sequence of a request.
func withTimeout(timeout time.Duration, next http.Handler) http.Handler {
	if timeout <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
