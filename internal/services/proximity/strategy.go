// Package proximity partitions the players of a room into voice-grouping
// buckets. The partition is consumed by an external voice layer; this core
// only derives the tokens.
package proximity

import (
	"math"
	"sort"
	"strings"

	"github.com/openrealms/presenced/internal/dependencies/random"
	"github.com/openrealms/presenced/internal/model"
)

const (
	// DefaultThreshold is the grouping distance in map units
	DefaultThreshold = 150

	idLength   = 12
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Strategy computes the proximity partition for one room.
//
// previous maps each player to the token it held before the recomputation;
// implementations must reuse a previous token whenever a group's membership
// is unchanged, so downstream consumers are not churned needlessly.
// Implementations must be safe for concurrent use by multiple sessions.
type Strategy interface {
	Group(players []model.Player, previous map[model.SubjectID]model.ProximityID) map[model.SubjectID]model.ProximityID
}

// ChainStrategy groups players by the transitive closure of the
// within-threshold relation: A and C share a group when a chain of players
// each within Threshold of the next connects them, even if A and C are far
// apart themselves. A player with no one nearby gets a singleton group with
// its own token; the token is stable while the player stays alone.
type ChainStrategy struct {
	Threshold float64
	Random    random.Random
}

// NewChainStrategy creates a ChainStrategy with the given threshold
func NewChainStrategy(threshold float64, rnd random.Random) *ChainStrategy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &ChainStrategy{Threshold: threshold, Random: rnd}
}

var _ Strategy = (*ChainStrategy)(nil)

func (s *ChainStrategy) Group(players []model.Player, previous map[model.SubjectID]model.ProximityID) map[model.SubjectID]model.ProximityID {
	n := len(players)
	if n == 0 {
		return map[model.SubjectID]model.ProximityID{}
	}

	// Union-find over player indices
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s.withinThreshold(players[i], players[j]) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]model.SubjectID)
	for i, p := range players {
		root := find(i)
		groups[root] = append(groups[root], p.SubjectID)
	}

	// Index the previous partition by token so unchanged groups keep theirs
	prevMembers := make(map[model.ProximityID][]model.SubjectID)
	for subject, id := range previous {
		prevMembers[id] = append(prevMembers[id], subject)
	}

	used := make(map[model.ProximityID]struct{})
	result := make(map[model.SubjectID]model.ProximityID, n)
	for _, members := range groups {
		id, ok := s.reusableID(members, previous, prevMembers)
		if !ok {
			id = s.freshID(used, previous)
		}
		used[id] = struct{}{}
		for _, subject := range members {
			result[subject] = id
		}
	}
	return result
}

func (s *ChainStrategy) withinThreshold(a, b model.Player) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= s.Threshold
}

// reusableID returns the previous token of this group when its membership is
// exactly unchanged
func (s *ChainStrategy) reusableID(
	members []model.SubjectID,
	previous map[model.SubjectID]model.ProximityID,
	prevMembers map[model.ProximityID][]model.SubjectID,
) (model.ProximityID, bool) {
	candidate, ok := previous[members[0]]
	if !ok {
		return "", false
	}
	if !sameMembers(members, prevMembers[candidate]) {
		return "", false
	}
	return candidate, true
}

func (s *ChainStrategy) freshID(used map[model.ProximityID]struct{}, previous map[model.SubjectID]model.ProximityID) model.ProximityID {
	for {
		id := model.ProximityID(s.Random.String(idLength, idAlphabet))
		if _, taken := used[id]; taken {
			continue
		}
		if previousHolds(previous, id) {
			continue
		}
		return id
	}
}

func previousHolds(previous map[model.SubjectID]model.ProximityID, id model.ProximityID) bool {
	for _, prev := range previous {
		if prev == id {
			return true
		}
	}
	return false
}

func sameMembers(a, b []model.SubjectID) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	for i := range a {
		as[i] = string(a[i])
		bs[i] = string(b[i])
	}
	sort.Strings(as)
	sort.Strings(bs)
	return strings.Join(as, "\x00") == strings.Join(bs, "\x00")
}
