// Package identity implements the connection-scoped identity gate and the
// process-wide user registry.
//
// The gate checks the bearer token's structure, expiry and subject claim but
// does NOT verify its cryptographic signature; it is advisory, not a security
// boundary on its own. A deployment that terminates untrusted traffic here
// must verify signatures against the issuer's keys.
package identity

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openrealms/presenced/internal/dependencies/clock"
	"github.com/openrealms/presenced/internal/model"
)

// Errors
var (
	ErrMissingCredentials = errors.New("missing auth token or uid")
	ErrMalformedToken     = errors.New("unable to decode token")
	ErrTokenExpired       = errors.New("token expired")
	ErrSubjectMismatch    = errors.New("uid does not match token subject")
)

// tokenClaims is the subset of the bearer token we inspect
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Gate validates inbound connection handshakes before any session logic runs
type Gate struct {
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewGate creates a new identity gate backed by the given registry
func NewGate(registry *Registry, clk clock.Clock, logger *slog.Logger) *Gate {
	return &Gate{
		registry: registry,
		clock:    clk,
		logger:   logger,
	}
}

// Authenticate validates the handshake credential for the claimed subject.
// On success the identity is registered and returned; on failure the
// connection must be refused before any session logic executes.
func (g *Gate) Authenticate(credential string, subjectID model.SubjectID) (model.Identity, error) {
	if credential == "" || subjectID == "" {
		return model.Identity{}, ErrMissingCredentials
	}

	claims := &tokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(credential, claims); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(g.clock.Now()) {
		return model.Identity{}, ErrTokenExpired
	}

	if claims.Subject != string(subjectID) {
		return model.Identity{}, ErrSubjectMismatch
	}

	identity := model.Identity{
		SubjectID: subjectID,
		Email:     claims.Email,
	}
	g.registry.Add(identity)

	g.logger.Info("connection authenticated",
		slog.String("subject_id", string(subjectID)))

	return identity, nil
}
