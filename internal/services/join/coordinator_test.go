package join

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/openrealms/presenced/internal/dependencies/random"
	"github.com/openrealms/presenced/internal/directory"
	"github.com/openrealms/presenced/internal/directory/memory"
	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/identity"
	"github.com/openrealms/presenced/internal/services/proximity"
	"github.com/openrealms/presenced/internal/services/session"
	"github.com/openrealms/presenced/internal/testutil"
)

// fakeNotifier records kick notices and disconnects
type fakeNotifier struct {
	mu          sync.Mutex
	unicasts    []fakeUnicast
	disconnects []model.ConnectionID
}

type fakeUnicast struct {
	ConnID  model.ConnectionID
	Event   model.EventName
	Payload any
}

func (n *fakeNotifier) Unicast(connID model.ConnectionID, event model.EventName, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unicasts = append(n.unicasts, fakeUnicast{ConnID: connID, Event: event, Payload: payload})
}

func (n *fakeNotifier) Disconnect(connID model.ConnectionID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects = append(n.disconnects, connID)
}

// blockingRealms delays realm lookups until released, to exercise the
// duplicate-join guard and the lookup timeout
type blockingRealms struct {
	inner   directory.RealmDirectory
	entered chan struct{}
	release chan struct{}
}

func newBlockingRealms(inner directory.RealmDirectory) *blockingRealms {
	return &blockingRealms{
		inner:   inner,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingRealms) GetRealm(ctx context.Context, id model.RealmID) (*model.Realm, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return b.inner.GetRealm(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failingProfiles rejects every profile lookup
type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, model.SubjectID) (*model.Profile, error) {
	return nil, errors.New("profile backend down")
}

func (failingProfiles) GetOrCreateProfile(context.Context, model.SubjectID) (*model.Profile, error) {
	return nil, errors.New("profile backend down")
}

func (failingProfiles) SaveProfile(context.Context, *model.Profile) error {
	return errors.New("profile backend down")
}

type CoordinatorSuite struct {
	suite.Suite
	registry  *identity.Registry
	directory *memory.Directory
	sessions  *session.Store
	notifier  *fakeNotifier
	ctx       context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.registry = identity.NewRegistry()
	s.directory = memory.New()
	s.sessions = session.NewStore(proximity.NewChainStrategy(150, random.New()), testutil.NopLogger())
	s.notifier = &fakeNotifier{}
	s.ctx = context.Background()

	err := s.directory.SaveRealm(s.ctx, &model.Realm{
		ID:      "realm-1",
		OwnerID: "owner-1",
		MapData: model.MapData{Rooms: []model.RoomDef{{Name: "lobby", SpawnX: 10, SpawnY: 20}}},
	})
	s.Require().NoError(err)
	err = s.directory.SaveRealm(s.ctx, &model.Realm{
		ID:      "realm-2",
		MapData: model.MapData{Rooms: []model.RoomDef{{Name: "hall"}}},
	})
	s.Require().NoError(err)

	s.registry.Add(model.Identity{SubjectID: "u1", Email: "alice.smith@example.com"})
}

func (s *CoordinatorSuite) newCoordinator(realms directory.RealmDirectory, profiles directory.ProfileStore) *Coordinator {
	if realms == nil {
		realms = s.directory
	}
	if profiles == nil {
		profiles = s.directory
	}
	return NewCoordinator(s.registry, realms, profiles, s.sessions, s.notifier, time.Second, testutil.NopLogger())
}

func (s *CoordinatorSuite) rejectionReason(err error) string {
	var rejection *RejectionError
	s.Require().ErrorAs(err, &rejection)
	return rejection.Reason
}

func (s *CoordinatorSuite) TestJoinSucceeds() {
	c := s.newCoordinator(nil, nil)

	result, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	s.Equal(model.RealmID("realm-1"), result.Session.RealmID())
	s.Equal(model.SubjectID("u1"), result.Player.SubjectID)
	s.Equal(model.ConnectionID("c1"), result.Player.ConnectionID)
	s.Equal(0, result.Player.RoomIndex)
	s.InDelta(10.0, result.Player.X, 0.001)
	s.Equal("alice smith", result.Player.DisplayName)
	s.Equal(model.DefaultSkin, result.Player.Skin)
	s.NotEmpty(result.Player.ProximityID)

	s.False(c.Joining("u1"))
	s.Equal(1, s.sessions.Len())
}

func (s *CoordinatorSuite) TestJoinUsesStoredSkin() {
	s.Require().NoError(s.directory.SaveProfile(s.ctx, &model.Profile{SubjectID: "u1", Skin: "042"}))
	c := s.newCoordinator(nil, nil)

	result, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)
	s.Equal("042", result.Player.Skin)
}

func (s *CoordinatorSuite) TestJoinInvalidRequest() {
	c := s.newCoordinator(nil, nil)

	_, err := c.Join(s.ctx, "c1", "u1", Request{})
	s.Equal(ReasonInvalidRequest, s.rejectionReason(err))
	s.False(c.Joining("u1"))
	s.Equal(0, s.sessions.Len())
}

func (s *CoordinatorSuite) TestJoinUnknownRealm() {
	c := s.newCoordinator(nil, nil)

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "missing"})
	s.Equal(ReasonRealmNotFound, s.rejectionReason(err))
	s.False(c.Joining("u1"))
}

func (s *CoordinatorSuite) TestJoinProfileFailure() {
	c := s.newCoordinator(nil, failingProfiles{})

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Equal(ReasonProfileFailed, s.rejectionReason(err))
	s.False(c.Joining("u1"))
	s.Equal(0, s.sessions.Len())
}

// A failed rejoin must not strand the subject: lookups fail before the prior
// session is touched, and the marker is cleared either way
func (s *CoordinatorSuite) TestFailedRejoinKeepsPriorSession() {
	good := s.newCoordinator(nil, nil)
	_, err := good.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	bad := s.newCoordinator(nil, failingProfiles{})
	_, err = bad.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-2"})
	s.Equal(ReasonProfileFailed, s.rejectionReason(err))

	prior, ok := s.sessions.PlayerSession("u1")
	s.Require().True(ok)
	s.Equal(model.RealmID("realm-1"), prior.RealmID())
	player, _ := prior.Player("u1")
	s.Equal(model.ConnectionID("c1"), player.ConnectionID)

	s.Empty(s.notifier.disconnects)
	s.False(bad.Joining("u1"))

	// The subject can still join afterwards
	_, err = good.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-2"})
	s.NoError(err)
}

func (s *CoordinatorSuite) TestSecondDeviceEvictsFirst() {
	c := s.newCoordinator(nil, nil)

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	result, err := c.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	s.Require().Len(s.notifier.unicasts, 1)
	s.Equal(model.ConnectionID("c1"), s.notifier.unicasts[0].ConnID)
	s.Equal(model.EventKicked, s.notifier.unicasts[0].Event)
	s.Equal(KickReason, s.notifier.unicasts[0].Payload)
	s.Equal([]model.ConnectionID{"c1"}, s.notifier.disconnects)

	// Exactly one player for u1, bound to the new connection
	s.Equal(1, result.Session.Len())
	player, ok := result.Session.Player("u1")
	s.Require().True(ok)
	s.Equal(model.ConnectionID("c2"), player.ConnectionID)
}

func (s *CoordinatorSuite) TestSameRealmRejoinStaysInStore() {
	c := s.newCoordinator(nil, nil)

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	result, err := c.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	// Evicting the first device empties the realm's session for a moment;
	// the session the second device landed in must still be the one the
	// store resolves, or every later event for u1 would be dropped
	sess, ok := s.sessions.PlayerSession("u1")
	s.Require().True(ok)
	s.Same(result.Session, sess)

	stored, ok := s.sessions.Get("realm-1")
	s.Require().True(ok)
	s.Same(result.Session, stored)
	s.Equal(1, s.sessions.Len())

	player, ok := sess.Player("u1")
	s.Require().True(ok)
	s.Equal(model.ConnectionID("c2"), player.ConnectionID)
}

func (s *CoordinatorSuite) TestCrossRealmSinglePresence() {
	c := s.newCoordinator(nil, nil)

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Require().NoError(err)

	result, err := c.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-2"})
	s.Require().NoError(err)

	s.Equal(model.RealmID("realm-2"), result.Session.RealmID())

	// The old realm's session emptied out and was reaped
	s.Equal(1, s.sessions.Len())
	got, ok := s.sessions.PlayerSession("u1")
	s.Require().True(ok)
	s.Equal(model.RealmID("realm-2"), got.RealmID())
}

func (s *CoordinatorSuite) TestConcurrentDuplicateJoinRejected() {
	blocking := newBlockingRealms(s.directory)
	c := s.newCoordinator(blocking, nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
		firstDone <- err
	}()

	// Wait until the first join is inside the realm lookup
	select {
	case <-blocking.entered:
	case <-time.After(time.Second):
		s.FailNow("first join never reached the realm lookup")
	}

	_, err := c.Join(s.ctx, "c2", "u1", Request{RealmID: "realm-1"})
	s.Equal(ReasonAlreadyJoining, s.rejectionReason(err))

	// The in-flight join's marker survived the duplicate rejection
	s.True(c.Joining("u1"))

	close(blocking.release)
	s.NoError(<-firstDone)
	s.False(c.Joining("u1"))
}

func (s *CoordinatorSuite) TestLookupTimeoutClearsMarker() {
	blocking := newBlockingRealms(s.directory) // never released
	c := NewCoordinator(s.registry, blocking, s.directory, s.sessions, s.notifier, 20*time.Millisecond, testutil.NopLogger())

	_, err := c.Join(s.ctx, "c1", "u1", Request{RealmID: "realm-1"})
	s.Equal(ReasonRealmNotFound, s.rejectionReason(err))
	s.False(c.Joining("u1"))
}

func (s *CoordinatorSuite) TestUnregisteredSubjectFallsBackToID() {
	c := s.newCoordinator(nil, nil)

	result, err := c.Join(s.ctx, "c9", "stranger", Request{RealmID: "realm-1"})
	s.Require().NoError(err)
	s.Equal("stranger", result.Player.DisplayName)
}

// Randomized join/evict interleavings never leave a subject with more than
// one player across the whole store
func (s *CoordinatorSuite) TestSinglePresenceUnderInterleavings() {
	c := s.newCoordinator(nil, nil)

	subjects := []model.SubjectID{"u1", "u2", "u3"}
	realms := []string{"realm-1", "realm-2"}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := subjects[i%len(subjects)]
			realm := realms[i%len(realms)]
			connID := model.ConnectionID(string(subject) + "-conn-" + string(rune('a'+i)))
			_, _ = c.Join(s.ctx, connID, subject, Request{RealmID: realm})
		}(i)
	}
	wg.Wait()

	for _, subject := range subjects {
		count := 0
		for _, realm := range realms {
			if sess, ok := s.sessions.Get(model.RealmID(realm)); ok && sess.HasPlayer(subject) {
				count++
			}
		}
		s.LessOrEqual(count, 1, "subject %s present in %d sessions", subject, count)
		s.False(c.Joining(subject))
	}
}
