package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const maintenanceKey = "storefront:maintenance"

// MaintenanceGuard returns 503 while the maintenance flag is set in redis.
// The flag is cached locally for a short TTL; the cache is a read-pressure
// optimization only.
type MaintenanceGuard struct {
	rdb      *redis.Client
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    bool
	fetchedAt time.Time
}

// NewMaintenanceGuard creates new MaintenanceGuard instance
func NewMaintenanceGuard(rdb *redis.Client, cacheTTL time.Duration) *MaintenanceGuard {
	return &MaintenanceGuard{rdb: rdb, cacheTTL: cacheTTL}
}

// Middleware rejects requests while maintenance mode is on.
func (g *MaintenanceGuard) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.enabled(r) {
				http.Error(w, "temporarily unavailable for maintenance", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *MaintenanceGuard) enabled(r *http.Request) bool {
	if g.rdb == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.fetchedAt) < g.cacheTTL {
		return g.cached
	}

	val, err := g.rdb.Get(r.Context(), maintenanceKey).Result()
	if err != nil {
		// redis down or flag unset: stay open
		g.cached = false
	} else {
		g.cached = val == "on"
	}
	g.fetchedAt = time.Now()

	return g.cached
}
