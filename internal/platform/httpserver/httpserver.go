package httpserver

import (
	"net/http"
	"time"
)

// New builds the process's HTTP server. Request bodies are small JSON
// envelopes, but anchoring handlers wait on transaction inclusion, so
// the write timeout leaves headroom over the router's 60s handler
// budget.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
