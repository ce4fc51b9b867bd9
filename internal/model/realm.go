package model

// RealmID uniquely identifies a virtual-space instance
type RealmID string

// Realm is the externally supplied immutable descriptor of a space,
// fetched once from the realm directory when the realm is activated
type Realm struct {
	ID      RealmID `json:"id"`
	OwnerID string  `json:"ownerId"`
	MapData MapData `json:"mapData"`
}

// MapData is the layout of a realm: an ordered list of rooms.
// Room 0 is the default room new players spawn into.
type MapData struct {
	Rooms []RoomDef `json:"rooms"`
}

// RoomDef describes one sub-area of a realm
type RoomDef struct {
	Name   string  `json:"name"`
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
}

// SpawnPoint returns the spawn coordinates for the given room index,
// falling back to the origin when the map has no such room.
func (m MapData) SpawnPoint(roomIndex int) (x, y float64) {
	if roomIndex < 0 || roomIndex >= len(m.Rooms) {
		return 0, 0
	}
	return m.Rooms[roomIndex].SpawnX, m.Rooms[roomIndex].SpawnY
}
