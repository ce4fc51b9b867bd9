package model

import "errors"

// Common errors used across the application
var (
	// Identity errors
	ErrIdentityNotFound = errors.New("identity not found")

	// Realm directory errors
	ErrRealmNotFound = errors.New("realm not found")

	// Profile store errors
	ErrProfileNotFound = errors.New("profile not found")

	// Session errors
	ErrPlayerNotFound   = errors.New("player not found")
	ErrAlreadyInSession = errors.New("subject already has a player in this session")
	ErrRoomOutOfRange   = errors.New("room index out of range")
)
