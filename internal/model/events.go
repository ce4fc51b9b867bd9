package model

// EventName identifies a protocol event on the wire
type EventName string

// Client -> server events
const (
	EventJoinRealm   EventName = "joinRealm"
	EventMovePlayer  EventName = "movePlayer"
	EventTeleport    EventName = "teleport"
	EventChangedSkin EventName = "changedSkin"
	EventSendMessage EventName = "sendMessage"
)

// Server -> client events
const (
	EventJoinedRealm       EventName = "joinedRealm"
	EventFailedToJoinRoom  EventName = "failedToJoinRoom"
	EventPlayerJoinedRoom  EventName = "playerJoinedRoom"
	EventPlayerLeftRoom    EventName = "playerLeftRoom"
	EventPlayerMoved       EventName = "playerMoved"
	EventPlayerTeleported  EventName = "playerTeleported"
	EventProximityUpdate   EventName = "proximityUpdate"
	EventPlayerChangedSkin EventName = "playerChangedSkin"
	EventReceiveMessage    EventName = "receiveMessage"
	EventKicked            EventName = "kicked"
)

// PlayerMovedPayload is broadcast to a room when a player moves or teleports
type PlayerMovedPayload struct {
	SubjectID SubjectID `json:"uid"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
}

// ProximityUpdatePayload carries a player's new voice-grouping token
type ProximityUpdatePayload struct {
	ProximityID ProximityID `json:"proximityId"`
}

// PlayerChangedSkinPayload is broadcast to a room on a skin change
type PlayerChangedSkinPayload struct {
	SubjectID SubjectID `json:"uid"`
	Skin      string    `json:"skin"`
}

// ReceiveMessagePayload is broadcast to a room for a chat message
type ReceiveMessagePayload struct {
	SubjectID SubjectID `json:"uid"`
	Message   string    `json:"message"`
}
