package services

import (
	"log/slog"
	"time"

	"github.com/AnshRaj112/marketbot-backend/internal/cache"
	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/config"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// Cache names as reported by the admin cache statistics.
const (
	ProfileCacheName = "profiles"
	ListingCacheName = "listings"
	SearchCacheName  = "search_results"
	StatsCacheName   = "admin_stats"
	EventCacheName   = "events"
)

// eventCacheCapacity bounds the in-memory dedup window.
const eventCacheCapacity = 10000

// Caches groups every process-local cache the services read through.
type Caches struct {
	Profiles *cache.Cache[models.UserProfile]
	Listings *cache.Cache[models.Listing]
	Search   *cache.Cache[models.ListingPage]
	Stats    *cache.Cache[models.AdminStats]
	Events   *cache.Cache[struct{}]

	Manager *cache.Manager
}

// NewCaches builds the caches from cfg and registers them with a Manager.
// The Manager is not started.
func NewCaches(cfg config.CacheConfig, dedupTTL time.Duration, clk clock.Clock, log *slog.Logger) *Caches {
	c := &Caches{
		Profiles: cache.New[models.UserProfile](ProfileCacheName, specOptions(cfg.Profile), clk),
		Listings: cache.New[models.Listing](ListingCacheName, specOptions(cfg.Listing), clk),
		Search:   cache.New[models.ListingPage](SearchCacheName, specOptions(cfg.Search), clk),
		Stats:    cache.New[models.AdminStats](StatsCacheName, specOptions(cfg.Stats), clk),
		Events:   cache.New[struct{}](EventCacheName, cache.Options{TTL: dedupTTL, Capacity: eventCacheCapacity}, clk),
	}

	c.Manager = cache.NewManager(cache.ManagerOptions{
		SweepInterval: cfg.SweepInterval,
		MemoryLimit:   uint64(cfg.MemoryLimitMB) << 20,
	}, log)
	c.Manager.Register(c.Profiles, c.Listings, c.Search, c.Stats)
	// The event window backs de-duplication and must outlive cache flushes.
	c.Manager.RegisterPinned(c.Events)
	return c
}

func specOptions(s config.CacheSpec) cache.Options {
	return cache.Options{TTL: s.TTL, Capacity: s.Size}
}
