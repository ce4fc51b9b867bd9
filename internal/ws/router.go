package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/identity"
	"github.com/openrealms/presenced/internal/services/join"
	"github.com/openrealms/presenced/internal/services/session"
)

// envelope frames every message on the wire
type envelope struct {
	Event model.EventName `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Router binds inbound protocol events to validated handlers and dispatches
// outbound events to the correct recipient set.
//
// Malformed payloads and events from subjects without an active session are
// silently dropped: a deliberate fail-closed policy for bad client input,
// not an error surfaced to the user.
type Router struct {
	hub         *Hub
	registry    *identity.Registry
	sessions    *session.Store
	coordinator *join.Coordinator
	logger      *slog.Logger
}

// NewRouter creates an event router
func NewRouter(hub *Hub, registry *identity.Registry, sessions *session.Store, coordinator *join.Coordinator, logger *slog.Logger) *Router {
	return &Router{
		hub:         hub,
		registry:    registry,
		sessions:    sessions,
		coordinator: coordinator,
		logger:      logger,
	}
}

// HandleMessage dispatches one inbound frame from a connection
func (r *Router) HandleMessage(ctx context.Context, conn Conn, subjectID model.SubjectID, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.drop(subjectID, "unparseable frame", err)
		return
	}

	if env.Event == model.EventJoinRealm {
		r.handleJoin(ctx, conn, subjectID, env.Data)
		return
	}

	// Everything past the join requires an active session
	sess, ok := r.sessions.PlayerSession(subjectID)
	if !ok {
		r.drop(subjectID, "no active session", nil)
		return
	}

	switch env.Event {
	case model.EventMovePlayer:
		var payload MovePayload
		if !r.decode(subjectID, env.Data, &payload) {
			return
		}
		r.handleMove(conn, sess, subjectID, payload)
	case model.EventTeleport:
		var payload TeleportPayload
		if !r.decode(subjectID, env.Data, &payload) {
			return
		}
		r.handleTeleport(conn, sess, subjectID, payload)
	case model.EventChangedSkin:
		var payload SkinPayload
		if !r.decode(subjectID, env.Data, &payload) {
			return
		}
		r.handleSkin(conn, sess, subjectID, payload)
	case model.EventSendMessage:
		var payload MessagePayload
		if !r.decode(subjectID, env.Data, &payload) {
			return
		}
		r.handleMessage(conn, sess, subjectID, payload)
	default:
		r.drop(subjectID, "unknown event", nil)
	}
}

// HandleDisconnect runs when a connection's read loop ends for any reason.
// It is idempotent: a disconnect arriving after the player was already
// removed by an eviction is a no-op.
func (r *Router) HandleDisconnect(conn Conn, subjectID model.SubjectID) {
	sess, ok := r.sessions.PlayerSession(subjectID)
	if !ok {
		// Authenticated but never joined (or already evicted and rebound).
		// Drop the registry entry only when no join is in flight for the
		// subject; an in-flight join will re-register.
		if !r.coordinator.Joining(subjectID) {
			r.registry.Remove(subjectID)
		}
		return
	}

	player, ok := sess.Player(subjectID)
	if !ok || player.ConnectionID != conn.ID() {
		// The player now belongs to a newer connection; stale signal
		return
	}

	peers := r.roomConnections(sess, player.RoomIndex, conn.ID())
	if !r.sessions.RemoveBySocket(conn.ID()) {
		return
	}

	r.hub.Multicast(peers, model.EventPlayerLeftRoom, subjectID)
	r.registry.Remove(subjectID)

	r.logger.Info("player disconnected",
		slog.String("subject_id", string(subjectID)),
		slog.String("connection_id", string(conn.ID())))
}

func (r *Router) handleJoin(ctx context.Context, conn Conn, subjectID model.SubjectID, data json.RawMessage) {
	var req join.Request
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			conn.Send(model.EventFailedToJoinRoom, join.ReasonInvalidRequest)
			return
		}
	}

	result, err := r.coordinator.Join(ctx, conn.ID(), subjectID, req)
	if err != nil {
		var rejection *join.RejectionError
		if errors.As(err, &rejection) {
			conn.Send(model.EventFailedToJoinRoom, rejection.Reason)
		} else {
			r.logger.Error("join failed",
				slog.String("subject_id", string(subjectID)),
				slog.String("error", err.Error()))
		}
		return
	}

	conn.Send(model.EventJoinedRealm, nil)
	r.broadcastRoom(result.Session, result.Player.RoomIndex, conn.ID(), model.EventPlayerJoinedRoom, result.Player)
	r.notifyProximity(result.Session, result.ProximityChanged)
}

func (r *Router) handleMove(conn Conn, sess *session.Session, subjectID model.SubjectID, payload MovePayload) {
	changed, err := sess.MovePlayer(subjectID, payload.X, payload.Y)
	if err != nil {
		r.drop(subjectID, "move without player", err)
		return
	}

	player, ok := sess.Player(subjectID)
	if !ok {
		return
	}

	r.broadcastRoom(sess, player.RoomIndex, conn.ID(), model.EventPlayerMoved, model.PlayerMovedPayload{
		SubjectID: subjectID,
		X:         player.X,
		Y:         player.Y,
	})
	r.notifyProximity(sess, changed)
}

func (r *Router) handleTeleport(conn Conn, sess *session.Session, subjectID model.SubjectID, payload TeleportPayload) {
	player, ok := sess.Player(subjectID)
	if !ok {
		return
	}

	if payload.RoomIndex == player.RoomIndex {
		// Same-room teleport is an ordinary move with a distinct event name
		// so clients can skip the walk animation
		changed, err := sess.MovePlayer(subjectID, payload.X, payload.Y)
		if err != nil {
			return
		}
		moved, _ := sess.Player(subjectID)
		r.broadcastRoom(sess, moved.RoomIndex, conn.ID(), model.EventPlayerTeleported, model.PlayerMovedPayload{
			SubjectID: subjectID,
			X:         moved.X,
			Y:         moved.Y,
		})
		r.notifyProximity(sess, changed)
		return
	}

	// The room change must succeed before the old room hears a departure;
	// a rejected destination leaves the player where they were
	oldRoom := player.RoomIndex
	changed, err := sess.ChangeRoom(subjectID, payload.RoomIndex, payload.X, payload.Y)
	if err != nil {
		r.drop(subjectID, "room change rejected", err)
		return
	}

	r.broadcastRoom(sess, oldRoom, conn.ID(), model.EventPlayerLeftRoom, subjectID)

	moved, ok := sess.Player(subjectID)
	if !ok {
		return
	}
	r.broadcastRoom(sess, moved.RoomIndex, conn.ID(), model.EventPlayerJoinedRoom, moved)
	r.notifyProximity(sess, changed)
}

func (r *Router) handleSkin(conn Conn, sess *session.Session, subjectID model.SubjectID, payload SkinPayload) {
	if err := sess.SetSkin(subjectID, payload.Skin); err != nil {
		return
	}

	room, err := sess.PlayerRoom(subjectID)
	if err != nil {
		return
	}
	r.broadcastRoom(sess, room, conn.ID(), model.EventPlayerChangedSkin, model.PlayerChangedSkinPayload{
		SubjectID: subjectID,
		Skin:      payload.Skin,
	})
}

func (r *Router) handleMessage(conn Conn, sess *session.Session, subjectID model.SubjectID, payload MessagePayload) {
	message, ok := NormalizeMessage(payload.Message)
	if !ok {
		return
	}

	room, err := sess.PlayerRoom(subjectID)
	if err != nil {
		return
	}
	r.broadcastRoom(sess, room, conn.ID(), model.EventReceiveMessage, model.ReceiveMessagePayload{
		SubjectID: subjectID,
		Message:   message,
	})
}

// broadcastRoom sends an event to every connection in a room except the
// excluded one (usually the sender)
func (r *Router) broadcastRoom(sess *session.Session, roomIndex int, exclude model.ConnectionID, event model.EventName, payload any) {
	r.hub.Multicast(r.roomConnections(sess, roomIndex, exclude), event, payload)
}

// notifyProximity unicasts each affected player its own new grouping token
func (r *Router) notifyProximity(sess *session.Session, changed []model.SubjectID) {
	for _, subject := range changed {
		player, ok := sess.Player(subject)
		if !ok {
			continue
		}
		r.hub.Unicast(player.ConnectionID, model.EventProximityUpdate, model.ProximityUpdatePayload{
			ProximityID: player.ProximityID,
		})
	}
}

func (r *Router) roomConnections(sess *session.Session, roomIndex int, exclude model.ConnectionID) []model.ConnectionID {
	conns := sess.ConnectionsInRoom(roomIndex)
	filtered := conns[:0]
	for _, connID := range conns {
		if connID != exclude {
			filtered = append(filtered, connID)
		}
	}
	return filtered
}

func (r *Router) decode(subjectID model.SubjectID, data json.RawMessage, payload interface{ Validate() error }) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		r.drop(subjectID, "malformed payload", err)
		return false
	}
	if err := payload.Validate(); err != nil {
		r.drop(subjectID, "invalid payload", err)
		return false
	}
	return true
}

func (r *Router) drop(subjectID model.SubjectID, why string, err error) {
	attrs := []any{slog.String("subject_id", string(subjectID)), slog.String("reason", why)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.Debug("event dropped", attrs...)
}
