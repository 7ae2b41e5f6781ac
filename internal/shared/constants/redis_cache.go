package constants

import (
	"fmt"
	"time"
)

// Redis cache keys and TTLs for the Tableside service.
// Pattern: tableside:{module}:{operation}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_STATIC_LONG   = 24 * time.Hour  // plan catalog
	TTL_DYNAMIC_QUICK = 2 * time.Minute // subscription snapshots
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "tableside"
)

// ================== SUBSCRIPTIONS MODULE ==================

const (
	CACHE_KEY_PLANS_ACTIVE        = CACHE_PREFIX + ":subscriptions:plans:active"
	CACHE_KEY_SUBSCRIPTION_STATUS = CACHE_PREFIX + ":subscriptions:status:user:" // + user-id
)

const (
	TTL_PLANS_ACTIVE        = TTL_STATIC_LONG
	TTL_SUBSCRIPTION_STATUS = TTL_DYNAMIC_QUICK
)

// ================== RATE LIMITING ==================

const (
	RATE_LIMIT_PREFIX = CACHE_PREFIX + ":ratelimit:"
)

// ================== INVALIDATION PATTERNS ==================

const (
	PATTERN_INVALIDATE_PLANS = CACHE_PREFIX + ":subscriptions:plans:*"
)

// ================== HELPER FUNCTIONS ==================

func BuildSubscriptionStatusKey(userID uint) string {
	return CACHE_KEY_SUBSCRIPTION_STATUS + fmt.Sprintf("%d", userID)
}
