// Package redis provides Redis-backed realm directory and profile store
// implementations. Realms and profiles are stored as JSON documents and
// shared with the rest of the platform.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openrealms/presenced/internal/directory"
	"github.com/openrealms/presenced/internal/model"
)

// Directory is a Redis-backed implementation of both directory interfaces
type Directory struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis directory instance
func New(cfg Config) (*Directory, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Directory{client: client, cfg: cfg}, nil
}

// NewWithClient creates a Redis directory with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Directory {
	return &Directory{client: client, cfg: cfg}
}

// Close closes the Redis connection
func (d *Directory) Close() error {
	return d.client.Close()
}

// Ensure Directory implements the interfaces
var (
	_ directory.RealmDirectory = (*Directory)(nil)
	_ directory.ProfileStore   = (*Directory)(nil)
)

// SaveRealm inserts or overwrites a realm descriptor
func (d *Directory) SaveRealm(ctx context.Context, realm *model.Realm) error {
	data, err := json.Marshal(realm)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, realmKey(realm.ID), data, 0).Err()
}

func (d *Directory) GetRealm(ctx context.Context, id model.RealmID) (*model.Realm, error) {
	data, err := d.client.Get(ctx, realmKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrRealmNotFound
	}
	if err != nil {
		return nil, err
	}

	var realm model.Realm
	if err := json.Unmarshal(data, &realm); err != nil {
		return nil, err
	}
	return &realm, nil
}

func (d *Directory) GetProfile(ctx context.Context, id model.SubjectID) (*model.Profile, error) {
	data, err := d.client.Get(ctx, profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	var profile model.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (d *Directory) GetOrCreateProfile(ctx context.Context, id model.SubjectID) (*model.Profile, error) {
	profile, err := d.GetProfile(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, model.ErrProfileNotFound) {
		return nil, err
	}

	fresh := &model.Profile{SubjectID: id, Skin: model.DefaultSkin}
	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}

	created, err := d.client.SetNX(ctx, profileKey(id), data, 0).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the race to a concurrent creator; read theirs
		return d.GetProfile(ctx, id)
	}
	return fresh, nil
}

func (d *Directory) SaveProfile(ctx context.Context, profile *model.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, profileKey(profile.SubjectID), data, 0).Err()
}
