// Package cache provides the in-memory response cache shared by the discovery
// pipeline. Values are stored JSON encoded so callers always receive a copy.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 512
	DefaultTTL  = 30 * time.Minute
)

// Cache is an LRU with a per-entry TTL. It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, []byte]
	ttl time.Duration
}

// New builds a cache holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl), ttl: ttl}
}

// Get decodes the entry stored under key into v. It reports false when the
// key is absent or expired.
func (c *Cache) Get(key string, v any) (bool, error) {
	if key == "" {
		return false, errors.New("empty key")
	}
	data, ok := c.lru.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.lru.Remove(key)
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(key string, v any) error {
	if key == "" {
		return errors.New("empty key")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.lru.Add(key, data)
	return nil
}

func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) TTL() time.Duration { return c.ttl }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

// Key hashes the given parts into a fixed-length cache key.
func Key(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}
