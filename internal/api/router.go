// Package api wires the HTTP surface: the websocket endpoint and the health
// check, behind logging and recovery middleware.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openrealms/presenced/internal/middleware"
	"github.com/openrealms/presenced/internal/ws"
)

// RouterConfig holds the dependencies of the HTTP router
type RouterConfig struct {
	Logger    *slog.Logger
	WSHandler *ws.Handler
}

// NewRouter creates the HTTP router
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger, middleware.DefaultPanicHandler))
	r.Use(middleware.Logging(cfg.Logger))

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.Handle("/ws", cfg.WSHandler).Methods(http.MethodGet)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
