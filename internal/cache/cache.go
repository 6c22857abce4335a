package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched pages by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey derives the cache key for a page URL.
func PageKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "ancestra:page:v1:" + hex.EncodeToString(hash[:])
}

// New builds the configured cache: memory in front of disk, or memory only
// when dir is empty.
func New(memoryTTL time.Duration, dir string, diskTTL time.Duration) Cache {
	memory := NewMemoryCache(memoryTTL, memoryTTL)
	if dir == "" {
		return memory
	}
	return NewLayeredCache(memory, NewDiskCache(dir, diskTTL))
}
