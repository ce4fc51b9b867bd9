package model

// SubjectID uniquely identifies an authenticated user across the system
type SubjectID string

// ConnectionID identifies a single live connection. A subject that logs in
// from two devices has two connection ids but only one active player.
type ConnectionID string

// ProximityID is an opaque voice-grouping token. Players in the same room
// that stand within the proximity threshold of one another share a token.
type ProximityID string

// Player is the live state of one connected subject within a session
type Player struct {
	SubjectID    SubjectID    `json:"uid"`
	ConnectionID ConnectionID `json:"-"`
	DisplayName  string       `json:"displayName"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	RoomIndex    int          `json:"room"`
	Skin         string       `json:"skin"`
	ProximityID  ProximityID  `json:"proximityId"`
}

// Profile holds per-user appearance data from the profile store
type Profile struct {
	SubjectID SubjectID `json:"uid"`
	Skin      string    `json:"skin"`
}

// DefaultSkin is assigned when a subject has no stored profile yet
const DefaultSkin = "009"
