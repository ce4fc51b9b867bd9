// Package factory wires the application components together.
package factory

import (
	"errors"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/openrealms/presenced/internal/config"
	"github.com/openrealms/presenced/internal/dependencies/clock"
	"github.com/openrealms/presenced/internal/dependencies/random"
	"github.com/openrealms/presenced/internal/directory"
	"github.com/openrealms/presenced/internal/directory/memory"
	redisdirectory "github.com/openrealms/presenced/internal/directory/redis"
	"github.com/openrealms/presenced/internal/services/identity"
	"github.com/openrealms/presenced/internal/services/join"
	"github.com/openrealms/presenced/internal/services/proximity"
	"github.com/openrealms/presenced/internal/services/session"
	"github.com/openrealms/presenced/internal/ws"
)

// App contains all wired application components
type App struct {
	Registry    *identity.Registry
	Gate        *identity.Gate
	Realms      directory.RealmDirectory
	Profiles    directory.ProfileStore
	Sessions    *session.Store
	Hub         *ws.Hub
	Coordinator *join.Coordinator
	Router      *ws.Router
	WSHandler   *ws.Handler

	closer io.Closer
}

// New creates a new application with all dependencies wired
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var (
		realms   directory.RealmDirectory
		profiles directory.ProfileStore
		closer   io.Closer
	)

	switch cfg.DirectoryBackend {
	case "", config.DirectoryMemory:
		dir := memory.New()
		realms, profiles = dir, dir
	case config.DirectoryRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL required when DIRECTORY_BACKEND=redis")
		}
		redisCfg := redisdirectory.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		dir, err := redisdirectory.New(redisCfg)
		if err != nil {
			return nil, err
		}
		realms, profiles = dir, dir
		closer = dir
	default:
		return nil, errors.New("invalid DIRECTORY_BACKEND: must be 'memory' or 'redis'")
	}

	return newWithDependencies(cfg, realms, profiles, closer, logger), nil
}

// newWithDependencies wires an App around the given collaborators
// (useful for testing)
func newWithDependencies(cfg config.Config, realms directory.RealmDirectory, profiles directory.ProfileStore, closer io.Closer, logger *slog.Logger) *App {
	clk := clock.New()
	rnd := random.New()

	registry := identity.NewRegistry()
	gate := identity.NewGate(registry, clk, logger)
	grouping := proximity.NewChainStrategy(cfg.ProximityThreshold, rnd)
	sessions := session.NewStore(grouping, logger)
	hub := ws.NewHub(logger)
	coordinator := join.NewCoordinator(registry, realms, profiles, sessions, hub, cfg.JoinLookupTimeout, logger)
	router := ws.NewRouter(hub, registry, sessions, coordinator, logger)

	limits := ws.RateLimitConfig{
		FramesPerSecond: rate.Limit(cfg.FramesPerSecond),
		Burst:           cfg.FrameBurst,
	}
	if limits.FramesPerSecond <= 0 || limits.Burst <= 0 {
		limits = ws.DefaultRateLimitConfig()
	}
	handler := ws.NewHandler(gate, hub, router, limits, cfg.AllowedOrigin, logger)

	return &App{
		Registry:    registry,
		Gate:        gate,
		Realms:      realms,
		Profiles:    profiles,
		Sessions:    sessions,
		Hub:         hub,
		Coordinator: coordinator,
		Router:      router,
		WSHandler:   handler,
		closer:      closer,
	}
}

// Close releases backend resources held by the app
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
