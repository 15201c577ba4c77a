package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// Run lifecycle states reported by the healthz endpoint.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusDone    = "done"
)

// HealthzServer reports liveness plus the lifecycle state of the current
// test run, so CI tooling polling the endpoint can tell a hung setup from a
// suite still executing.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	status atomic.Value
}

func NewHealthzServer() *HealthzServer {
	h := &HealthzServer{}
	h.status.Store(StatusIdle)
	return h
}

// SetStatus publishes a new lifecycle state.
func (h *HealthzServer) SetStatus(status string) {
	h.status.Store(status)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("received health check request", "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": h.status.Load().(string),
	})
}
