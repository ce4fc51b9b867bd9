package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/identity"
)

// Handler upgrades HTTP requests to websocket connections. The identity gate
// runs before the upgrade, so unauthenticated connections never reach the
// session layer.
//
// Handshake fields ride on the query string: ?token=<bearer>&uid=<subject>.
type Handler struct {
	gate     *identity.Gate
	hub      *Hub
	router   *Router
	limits   RateLimitConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket endpoint handler. An empty allowedOrigin
// admits every origin; otherwise only the given origin may connect.
func NewHandler(gate *identity.Gate, hub *Hub, router *Router, limits RateLimitConfig, allowedOrigin string, logger *slog.Logger) *Handler {
	return &Handler{
		gate:   gate,
		hub:    hub,
		router: router,
		limits: limits,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	subjectID := model.SubjectID(r.URL.Query().Get("uid"))

	if _, err := h.gate.Authenticate(token, subjectID); err != nil {
		h.logger.Warn("handshake rejected",
			slog.String("subject_id", string(subjectID)),
			slog.String("error", err.Error()))
		http.Error(w, "invalid token or uid", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(model.ConnectionID(uuid.NewString()), subjectID, conn, h.router, h.hub, h.limits, h.logger)
	h.hub.Register(client)
	client.Run(r.Context())
}
