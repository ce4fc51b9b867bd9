package identity

import (
	"sync"

	"github.com/openrealms/presenced/internal/model"
)

// Registry is the process-wide mapping from subject id to identity metadata.
// Entries are added when a connection passes the gate and removed when the
// subject's last connection disconnects.
type Registry struct {
	mu         sync.RWMutex
	identities map[model.SubjectID]model.Identity
}

// NewRegistry creates an empty identity registry
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[model.SubjectID]model.Identity),
	}
}

// Add inserts or overwrites the identity for a subject
func (r *Registry) Add(identity model.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.SubjectID] = identity
}

// Get returns the identity for a subject, or model.ErrIdentityNotFound
func (r *Registry) Get(id model.SubjectID) (model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return model.Identity{}, model.ErrIdentityNotFound
	}
	return identity, nil
}

// Remove deletes the identity for a subject
func (r *Registry) Remove(id model.SubjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.identities, id)
}

// Len returns the number of registered identities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
