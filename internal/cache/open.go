package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoreConfig selects the backing store.
type StoreConfig struct {
	Driver    string      `mapstructure:"driver"` // memory, file, redis
	Path      string      `mapstructure:"path"`   // file only
	Namespace string      `mapstructure:"namespace"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// OpenStore builds the Store named by cfg.Driver.
func OpenStore(cfg StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemoryStore(), nil
	case "file", "":
		path := cfg.Path
		if path == "" {
			path = DefaultFilePath()
		}
		return NewFileStore(path)
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}

// DefaultFilePath is ~/.fin-dashboard/cache.json, or cache.json in the
// working directory when the home directory is unknown.
func DefaultFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cache.json"
	}
	return filepath.Join(home, ".fin-dashboard", "cache.json")
}
