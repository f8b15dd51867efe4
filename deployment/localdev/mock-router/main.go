// mock-router is a stand-in route controller for local development. It
// accepts directive sets from wansteer-engine and prints the resulting
// weight table.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

type steeringDirective struct {
	LinkID  string `json:"linkId"`
	Weight  int    `json:"weight"`
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
}

type directiveSet struct {
	Cycle      uint64              `json:"cycle"`
	Directives []steeringDirective `json:"directives"`
}

type routeTable struct {
	mu      sync.Mutex
	applied directiveSet
}

func (t *routeTable) apply(set directiveSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = set
}

func (t *routeTable) current() directiveSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applied
}

func main() {
	logger := log.New(log.Writer(), "mock-router ", log.LstdFlags|log.Lmicroseconds)
	table := &routeTable{}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/routes/apply", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var set directiveSet
		if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
			http.Error(w, "bad directive set", http.StatusBadRequest)
			return
		}
		table.apply(set)
		for _, d := range set.Directives {
			logger.Printf("cycle=%d link=%s weight=%d enabled=%v state=%s",
				set.Cycle, d.LinkID, d.Weight, d.Enabled, d.State)
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/v1/routes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(table.current()); err != nil {
			logger.Printf("encode error: %v", err)
		}
	})

	srv := &http.Server{
		Addr:    ":8728",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8728")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
