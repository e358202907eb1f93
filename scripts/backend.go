//go:build ignore

// Backend is a test HTTP server used to exercise the failover proxy by hand.
// It answers every path with a small JSON document and can be switched into
// a failing mode, either at startup or at runtime through /toggle.
//
// Usage:
//
//	go run backend.go -port 8501
//	go run backend.go -port 8502 -fail -status 503
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
)

// Reply is the body written for every served request.
type Reply struct {
	ID        string `json:"id"`
	Server    string `json:"server"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
}

func main() {
	var (
		port   = flag.Int("port", 8501, "port to listen on")
		fail   = flag.Bool("fail", false, "start in failing mode")
		status = flag.Int("status", http.StatusServiceUnavailable, "status code returned while failing")
	)
	flag.Parse()

	var failing atomic.Bool
	failing.Store(*fail)
	addr := fmt.Sprintf(":%d", *port)

	mux := http.NewServeMux()

	// flips failing mode and reports the new state
	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := !failing.Load()
		failing.Store(now)
		log.Printf("failing=%t", now)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"failing": now})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: method=%s path=%s from=%s request_id=%s",
			r.Method, r.URL.Path, r.RemoteAddr, r.Header.Get("X-Request-Id"))

		if failing.Load() {
			http.Error(w, http.StatusText(*status), *status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Reply{
			ID:        uuid.NewString(),
			Server:    addr,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-Id"),
		})
	})

	log.Printf("starting backend on %s (failing=%t)", addr, failing.Load())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
