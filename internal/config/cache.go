package config

import "time"

// CatalogCacheConfig controls the Redis read-through cache in front of
// showtime lookups.  Seat availability is never cached; only the showtime
// row that reservation and feed requests validate against.
type CatalogCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCatalogCacheConfig reads CATALOG_CACHE_* variables.
func LoadCatalogCacheConfig() CatalogCacheConfig {
	cfg := CatalogCacheConfig{
		Enabled: envBool("CATALOG_CACHE_ENABLED", true),
		TTL:     envDur("CATALOG_CACHE_TTL", 30*time.Second),
		Prefix:  envStr("CATALOG_CACHE_PREFIX", "catalog"),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
