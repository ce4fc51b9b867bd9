// Package session owns the authoritative in-memory state of active realms:
// which players are connected, where they stand, which room they are in and
// which proximity group they belong to.
package session

import (
	"sync"

	"github.com/openrealms/presenced/internal/model"
	"github.com/openrealms/presenced/internal/services/proximity"
)

// Session is the live state of one active realm instance.
//
// All mutation goes through a single mutex; concurrent moves by different
// players in the same realm are serialized. Room sizes are small enough that
// coarse-grained locking is not a bottleneck.
type Session struct {
	realmID  model.RealmID
	mapData  model.MapData
	grouping proximity.Strategy

	mu      sync.RWMutex
	players map[model.SubjectID]*model.Player
	rooms   map[int]map[model.SubjectID]struct{}
}

// New creates an empty session for a realm
func New(realmID model.RealmID, mapData model.MapData, grouping proximity.Strategy) *Session {
	return &Session{
		realmID:  realmID,
		mapData:  mapData,
		grouping: grouping,
		players:  make(map[model.SubjectID]*model.Player),
		rooms:    make(map[int]map[model.SubjectID]struct{}),
	}
}

// RealmID returns the id of the realm this session hosts
func (s *Session) RealmID() model.RealmID {
	return s.realmID
}

// MapData returns the realm's map layout
func (s *Session) MapData() model.MapData {
	return s.mapData
}

// AddPlayer creates a player for the subject at the default room's spawn
// point and computes its initial proximity grouping. It returns the created
// player and the other players whose grouping changed because of the arrival.
//
// The subject must not already have a player here; callers evict any prior
// entry first.
func (s *Session) AddPlayer(connID model.ConnectionID, subjectID model.SubjectID, displayName, skin string) (model.Player, []model.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[subjectID]; exists {
		return model.Player{}, nil, model.ErrAlreadyInSession
	}

	x, y := s.mapData.SpawnPoint(0)
	player := &model.Player{
		SubjectID:    subjectID,
		ConnectionID: connID,
		DisplayName:  displayName,
		X:            x,
		Y:            y,
		RoomIndex:    0,
		Skin:         skin,
	}
	s.players[subjectID] = player
	s.roomSet(0)[subjectID] = struct{}{}

	changed := s.recomputeRoomLocked(0)
	others := changed[:0]
	for _, subject := range changed {
		if subject != subjectID {
			others = append(others, subject)
		}
	}
	return *player, others, nil
}

// Player returns a copy of the subject's player state
func (s *Session) Player(subjectID model.SubjectID) (model.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[subjectID]
	if !ok {
		return model.Player{}, false
	}
	return *player, true
}

// HasPlayer reports whether the subject has a player in this session
func (s *Session) HasPlayer(subjectID model.SubjectID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[subjectID]
	return ok
}

// ownsConnection reports whether any player here is bound to the connection
func (s *Session) ownsConnection(connID model.ConnectionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, player := range s.players {
		if player.ConnectionID == connID {
			return true
		}
	}
	return false
}

// MovePlayer updates the subject's position and recomputes the proximity
// grouping of its room. It returns every player whose grouping changed,
// including the mover itself. The room index never changes here.
func (s *Session) MovePlayer(subjectID model.SubjectID, x, y float64) ([]model.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[subjectID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}

	player.X = x
	player.Y = y
	return s.recomputeRoomLocked(player.RoomIndex), nil
}

// ChangeRoom moves the subject to another room at the given position and
// recomputes the grouping of both rooms. It returns every player whose
// grouping changed in either room.
func (s *Session) ChangeRoom(subjectID model.SubjectID, newRoom int, x, y float64) ([]model.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[subjectID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	if newRoom < 0 || (len(s.mapData.Rooms) > 0 && newRoom >= len(s.mapData.Rooms)) {
		return nil, model.ErrRoomOutOfRange
	}

	oldRoom := player.RoomIndex
	delete(s.roomSet(oldRoom), subjectID)
	s.roomSet(newRoom)[subjectID] = struct{}{}
	player.RoomIndex = newRoom
	player.X = x
	player.Y = y

	// The mover's grouping belongs to the room it left; carrying the token
	// across rooms would let players in different rooms share one. Clearing
	// it also guarantees the mover shows up in the changed set.
	player.ProximityID = ""

	changed := s.recomputeRoomLocked(oldRoom)
	changed = append(changed, s.recomputeRoomLocked(newRoom)...)
	return changed, nil
}

// SetSkin updates the subject's stored skin
func (s *Session) SetSkin(subjectID model.SubjectID, skin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[subjectID]
	if !ok {
		return model.ErrPlayerNotFound
	}
	player.Skin = skin
	return nil
}

// PlayerRoom returns the room index the subject is currently in
func (s *Session) PlayerRoom(subjectID model.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[subjectID]
	if !ok {
		return 0, model.ErrPlayerNotFound
	}
	return player.RoomIndex, nil
}

// PlayersInRoom returns copies of all players in the given room
func (s *Session) PlayersInRoom(roomIndex int) []model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playersInRoomLocked(roomIndex)
}

// ConnectionsInRoom returns the connection ids of all players in the room
func (s *Session) ConnectionsInRoom(roomIndex int) []model.ConnectionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.rooms[roomIndex]
	conns := make([]model.ConnectionID, 0, len(members))
	for subject := range members {
		conns = append(conns, s.players[subject].ConnectionID)
	}
	return conns
}

// LogOutBySocket removes the player bound to the given connection and
// recomputes the grouping of the room it left. It reports whether a removal
// actually occurred, so a stale disconnect signal after an eviction is a
// no-op.
func (s *Session) LogOutBySocket(connID model.ConnectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subject, player := range s.players {
		if player.ConnectionID != connID {
			continue
		}
		room := player.RoomIndex
		delete(s.players, subject)
		delete(s.roomSet(room), subject)
		s.recomputeRoomLocked(room)
		return true
	}
	return false
}

// Len returns the number of connected players
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

func (s *Session) roomSet(roomIndex int) map[model.SubjectID]struct{} {
	set, ok := s.rooms[roomIndex]
	if !ok {
		set = make(map[model.SubjectID]struct{})
		s.rooms[roomIndex] = set
	}
	return set
}

func (s *Session) playersInRoomLocked(roomIndex int) []model.Player {
	members := s.rooms[roomIndex]
	players := make([]model.Player, 0, len(members))
	for subject := range members {
		players = append(players, *s.players[subject])
	}
	return players
}

// recomputeRoomLocked rebuilds the proximity partition of one room and
// returns the subjects whose token changed. Caller holds the write lock.
func (s *Session) recomputeRoomLocked(roomIndex int) []model.SubjectID {
	members := s.playersInRoomLocked(roomIndex)
	if len(members) == 0 {
		return nil
	}

	// A token also held by someone outside this room is never a reuse
	// candidate: the group it named has been split across rooms, and the
	// stability check must see that as a membership change.
	escaped := make(map[model.ProximityID]struct{})
	memberSet := s.rooms[roomIndex]
	for subject, p := range s.players {
		if p.ProximityID == "" {
			continue
		}
		if _, in := memberSet[subject]; !in {
			escaped[p.ProximityID] = struct{}{}
		}
	}

	previous := make(map[model.SubjectID]model.ProximityID, len(members))
	for _, p := range members {
		if p.ProximityID == "" {
			continue
		}
		if _, split := escaped[p.ProximityID]; split {
			continue
		}
		previous[p.SubjectID] = p.ProximityID
	}

	groups := s.grouping.Group(members, previous)

	var changed []model.SubjectID
	for subject, id := range groups {
		player := s.players[subject]
		if player.ProximityID != id {
			player.ProximityID = id
			changed = append(changed, subject)
		}
	}
	return changed
}
