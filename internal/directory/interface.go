// Package directory defines the external collaborators the presence core
// consumes: the realm directory that resolves realm descriptors by id, and
// the profile store that holds per-user appearance data.
package directory

import (
	"context"

	"github.com/openrealms/presenced/internal/model"
)

// RealmDirectory resolves realm descriptors by id
type RealmDirectory interface {
	// GetRealm returns the realm descriptor, or model.ErrRealmNotFound
	GetRealm(ctx context.Context, id model.RealmID) (*model.Realm, error)
}

// ProfileStore holds per-user profiles
type ProfileStore interface {
	// GetProfile returns the stored profile, or model.ErrProfileNotFound
	GetProfile(ctx context.Context, id model.SubjectID) (*model.Profile, error)

	// GetOrCreateProfile returns the stored profile, creating one with the
	// default skin when the subject has none yet
	GetOrCreateProfile(ctx context.Context, id model.SubjectID) (*model.Profile, error)

	// SaveProfile inserts or overwrites a profile
	SaveProfile(ctx context.Context, profile *model.Profile) error
}
