package ws

import (
	"errors"
	"math"
)

var (
	errNonFinite    = errors.New("coordinates must be finite")
	errNegativeRoom = errors.New("room index must not be negative")
	errEmptySkin    = errors.New("skin must not be empty")
)

// MovePayload is the body of a movePlayer event
type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p MovePayload) Validate() error {
	if !finite(p.X) || !finite(p.Y) {
		return errNonFinite
	}
	return nil
}

// TeleportPayload is the body of a teleport event
type TeleportPayload struct {
	RoomIndex int     `json:"roomIndex"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (p TeleportPayload) Validate() error {
	if p.RoomIndex < 0 {
		return errNegativeRoom
	}
	if !finite(p.X) || !finite(p.Y) {
		return errNonFinite
	}
	return nil
}

// SkinPayload is the body of a changedSkin event. Any non-empty value is
// accepted as-is; appearance is a client concern.
type SkinPayload struct {
	Skin string `json:"skin"`
}

func (p SkinPayload) Validate() error {
	if p.Skin == "" {
		return errEmptySkin
	}
	return nil
}

// MessagePayload is the body of a sendMessage event. Length and whitespace
// rules are applied by the chat normalizer, not here.
type MessagePayload struct {
	Message string `json:"message"`
}

func (p MessagePayload) Validate() error {
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
