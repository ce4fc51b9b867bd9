// Package join orchestrates the multi-step admission protocol: duplicate-join
// guard, realm and profile lookups, prior-session eviction and registration.
package join

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openrealms/presenced/internal/directory"
	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/identity"
	"github.com/openrealms/presenced/internal/services/session"
)

// Rejection reasons surfaced to the requester
const (
	ReasonInvalidRequest = "Invalid request data."
	ReasonAlreadyJoining = "Already joining a space."
	ReasonRealmNotFound  = "Space not found."
	ReasonProfileFailed  = "Failed to get profile."

	// KickReason is sent to a prior connection evicted by a newer login
	KickReason = "You have logged in from another location."
)

// DefaultLookupTimeout bounds the external realm/profile lookups so a stalled
// dependency cannot leave a subject stuck in the joining state.
const DefaultLookupTimeout = 10 * time.Second

// RejectionError is a join rejection with a user-visible reason
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func reject(reason string) *RejectionError {
	return &RejectionError{Reason: reason}
}

// Request is the payload of a join attempt
type Request struct {
	RealmID string `json:"realmId"`
	ShareID string `json:"shareId,omitempty"`
}

// Valid reports whether the request shape is acceptable
func (r Request) Valid() bool {
	return r.RealmID != ""
}

// Notifier delivers out-of-band events to specific connections. The
// coordinator uses it to kick and drop a prior connection during eviction.
type Notifier interface {
	Unicast(connID model.ConnectionID, event model.EventName, payload any)
	Disconnect(connID model.ConnectionID)
}

// Result describes a completed admission
type Result struct {
	Session *session.Session
	Player  model.Player

	// ProximityChanged lists the other players in the destination room whose
	// grouping changed because of the arrival
	ProximityChanged []model.SubjectID
}

// Coordinator guarantees at most one in-flight join per subject and runs the
// admission protocol. External lookups complete (or fail) before any session
// mutation begins, so no lock is ever held across I/O.
type Coordinator struct {
	registry *identity.Registry
	realms   directory.RealmDirectory
	profiles directory.ProfileStore
	sessions *session.Store
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	joining map[model.SubjectID]struct{}
}

// NewCoordinator creates a join coordinator
func NewCoordinator(
	registry *identity.Registry,
	realms directory.RealmDirectory,
	profiles directory.ProfileStore,
	sessions *session.Store,
	notifier Notifier,
	lookupTimeout time.Duration,
	logger *slog.Logger,
) *Coordinator {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Coordinator{
		registry: registry,
		realms:   realms,
		profiles: profiles,
		sessions: sessions,
		notifier: notifier,
		timeout:  lookupTimeout,
		logger:   logger,
		joining:  make(map[model.SubjectID]struct{}),
	}
}

// Join admits the subject's connection into the requested realm.
// It returns a *RejectionError with a user-visible reason on rejection.
func (c *Coordinator) Join(ctx context.Context, connID model.ConnectionID, subjectID model.SubjectID, req Request) (*Result, error) {
	if !req.Valid() {
		return nil, reject(ReasonInvalidRequest)
	}

	if !c.beginJoining(subjectID) {
		// A join for this subject is already in flight. Its marker belongs
		// to that attempt and must not be cleared here.
		return nil, reject(ReasonAlreadyJoining)
	}
	defer c.endJoining(subjectID)

	realmID := model.RealmID(req.RealmID)

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	realm, err := c.realms.GetRealm(lookupCtx, realmID)
	if err != nil {
		c.logger.Warn("realm lookup failed",
			slog.String("realm_id", string(realmID)),
			slog.String("error", err.Error()))
		return nil, reject(ReasonRealmNotFound)
	}

	profile, err := c.profiles.GetOrCreateProfile(lookupCtx, subjectID)
	if err != nil {
		c.logger.Warn("profile lookup failed",
			slog.String("subject_id", string(subjectID)),
			slog.String("error", err.Error()))
		return nil, reject(ReasonProfileFailed)
	}

	// Single active session per subject: evict any prior connection,
	// whichever realm it is in. Eviction can reap an emptied session from
	// the store, so the destination session is resolved only afterwards;
	// resolving it first would leave the new player in an orphaned object
	// the store no longer knows about.
	if prior, ok := c.sessions.PlayerSession(subjectID); ok {
		if player, ok := prior.Player(subjectID); ok {
			c.evict(player.ConnectionID, subjectID)
		}
	}

	sess := c.sessions.GetOrCreate(realmID, realm.MapData)

	displayName := string(subjectID)
	if ident, err := c.registry.Get(subjectID); err == nil {
		displayName = ident.DisplayName()
	}

	player, changed, err := sess.AddPlayer(connID, subjectID, displayName, profile.Skin)
	if err != nil {
		return nil, err
	}

	c.logger.Info("player joined realm",
		slog.String("subject_id", string(subjectID)),
		slog.String("realm_id", string(realmID)),
		slog.String("connection_id", string(connID)))

	return &Result{
		Session:          sess,
		Player:           player,
		ProximityChanged: changed,
	}, nil
}

// Joining reports whether a join for the subject is currently in flight
func (c *Coordinator) Joining(subjectID model.SubjectID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joining[subjectID]
	return ok
}

func (c *Coordinator) beginJoining(subjectID model.SubjectID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, inFlight := c.joining[subjectID]; inFlight {
		return false
	}
	c.joining[subjectID] = struct{}{}
	return true
}

func (c *Coordinator) endJoining(subjectID model.SubjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joining, subjectID)
}

func (c *Coordinator) evict(connID model.ConnectionID, subjectID model.SubjectID) {
	c.notifier.Unicast(connID, model.EventKicked, KickReason)
	c.notifier.Disconnect(connID)
	c.sessions.RemoveBySocket(connID)

	c.logger.Info("prior connection evicted",
		slog.String("subject_id", string(subjectID)),
		slog.String("connection_id", string(connID)))
}
