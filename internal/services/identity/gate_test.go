package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/openrealms/presenced/internal/dependencies/mocks"
	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/testutil"
)

type GateSuite struct {
	suite.Suite
	registry *Registry
	clock    *mocks.MockClock
	gate     *Gate
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.registry = NewRegistry()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.gate = NewGate(s.registry, s.clock, testutil.NopLogger())
}

// signToken builds a token the way the upstream auth provider would.
// The gate never checks the signature, only structure and claims.
func (s *GateSuite) signToken(subject, email string, expiresAt time.Time) string {
	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	s.Require().NoError(err)
	return token
}

func (s *GateSuite) TestAuthenticateSucceeds() {
	token := s.signToken("subject-1", "alice.smith@example.com", s.clock.Now().Add(time.Hour))

	identity, err := s.gate.Authenticate(token, "subject-1")
	s.Require().NoError(err)
	s.Equal(model.SubjectID("subject-1"), identity.SubjectID)
	s.Equal("alice.smith@example.com", identity.Email)
	s.Equal("alice smith", identity.DisplayName())
}

func (s *GateSuite) TestAuthenticateRegistersIdentity() {
	token := s.signToken("subject-1", "alice@example.com", s.clock.Now().Add(time.Hour))

	_, err := s.gate.Authenticate(token, "subject-1")
	s.Require().NoError(err)

	identity, err := s.registry.Get("subject-1")
	s.Require().NoError(err)
	s.Equal("alice@example.com", identity.Email)
}

func (s *GateSuite) TestAuthenticateMissingCredential() {
	_, err := s.gate.Authenticate("", "subject-1")
	s.ErrorIs(err, ErrMissingCredentials)
}

func (s *GateSuite) TestAuthenticateMissingSubject() {
	token := s.signToken("subject-1", "a@b.c", s.clock.Now().Add(time.Hour))
	_, err := s.gate.Authenticate(token, "")
	s.ErrorIs(err, ErrMissingCredentials)
}

func (s *GateSuite) TestAuthenticateMalformedToken() {
	_, err := s.gate.Authenticate("not-a-jwt", "subject-1")
	s.ErrorIs(err, ErrMalformedToken)
}

func (s *GateSuite) TestAuthenticateExpiredToken() {
	token := s.signToken("subject-1", "a@b.c", s.clock.Now().Add(-time.Minute))
	_, err := s.gate.Authenticate(token, "subject-1")
	s.ErrorIs(err, ErrTokenExpired)
}

func (s *GateSuite) TestAuthenticateTokenWithoutExpiryAccepted() {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "subject-1"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	s.Require().NoError(err)

	_, err = s.gate.Authenticate(token, "subject-1")
	s.NoError(err)
}

func (s *GateSuite) TestAuthenticateSubjectMismatch() {
	token := s.signToken("subject-1", "a@b.c", s.clock.Now().Add(time.Hour))
	_, err := s.gate.Authenticate(token, "subject-2")
	s.ErrorIs(err, ErrSubjectMismatch)
}

func (s *GateSuite) TestFailureDoesNotRegister() {
	token := s.signToken("subject-1", "a@b.c", s.clock.Now().Add(-time.Minute))
	_, err := s.gate.Authenticate(token, "subject-1")
	s.Require().Error(err)

	_, err = s.registry.Get("subject-1")
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

// Registry tests

func (s *GateSuite) TestRegistryAddGetRemove() {
	s.registry.Add(model.Identity{SubjectID: "subject-1", Email: "a@b.c"})
	s.Equal(1, s.registry.Len())

	identity, err := s.registry.Get("subject-1")
	s.Require().NoError(err)
	s.Equal("a@b.c", identity.Email)

	s.registry.Remove("subject-1")
	_, err = s.registry.Get("subject-1")
	s.ErrorIs(err, model.ErrIdentityNotFound)
}

func (s *GateSuite) TestRegistryAddOverwrites() {
	s.registry.Add(model.Identity{SubjectID: "subject-1", Email: "old@b.c"})
	s.registry.Add(model.Identity{SubjectID: "subject-1", Email: "new@b.c"})

	identity, err := s.registry.Get("subject-1")
	s.Require().NoError(err)
	s.Equal("new@b.c", identity.Email)
}
