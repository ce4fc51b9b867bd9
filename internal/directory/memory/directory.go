// Package memory provides in-memory realm directory and profile store
// implementations, used in tests and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/openrealms/presenced/internal/directory"
	"github.com/openrealms/presenced/internal/model"
)

// Directory is an in-memory implementation of both directory interfaces
type Directory struct {
	mu       sync.RWMutex
	realms   map[model.RealmID]*model.Realm
	profiles map[model.SubjectID]*model.Profile
}

// New creates a new empty in-memory directory
func New() *Directory {
	return &Directory{
		realms:   make(map[model.RealmID]*model.Realm),
		profiles: make(map[model.SubjectID]*model.Profile),
	}
}

// Ensure Directory implements the interfaces
var (
	_ directory.RealmDirectory = (*Directory)(nil)
	_ directory.ProfileStore   = (*Directory)(nil)
)

// SaveRealm inserts or overwrites a realm descriptor
func (d *Directory) SaveRealm(_ context.Context, realm *model.Realm) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.realms[realm.ID] = realm
	return nil
}

func (d *Directory) GetRealm(_ context.Context, id model.RealmID) (*model.Realm, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	realm, ok := d.realms[id]
	if !ok {
		return nil, model.ErrRealmNotFound
	}
	copied := *realm
	return &copied, nil
}

func (d *Directory) GetProfile(_ context.Context, id model.SubjectID) (*model.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[id]
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (d *Directory) GetOrCreateProfile(_ context.Context, id model.SubjectID) (*model.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if profile, ok := d.profiles[id]; ok {
		copied := *profile
		return &copied, nil
	}
	profile := &model.Profile{SubjectID: id, Skin: model.DefaultSkin}
	d.profiles[id] = profile
	copied := *profile
	return &copied, nil
}

func (d *Directory) SaveProfile(_ context.Context, profile *model.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *profile
	d.profiles[profile.SubjectID] = &copied
	return nil
}
