package cache

import "fmt"

// NewCache builds the backend selected by cfg.Type, defaulting to local.
func NewCache(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalCache(), nil
	case "redis":
		return NewRedisCache(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
