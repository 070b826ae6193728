package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// DefaultNamespace prefixes every key written to the store.
const DefaultNamespace = "fin_cache:"

// entry is the serialized form: {"value": <json>, "expiry": <epoch ms>}.
type entry struct {
	Value  json.RawMessage `json:"value"`
	Expiry *int64          `json:"expiry"`
}

// ExpiringCache stores JSON values with a per-entry TTL. Expired entries are
// evicted lazily when read; there is no background sweeper. Read failures of
// any kind are reported as a miss.
type ExpiringCache struct {
	store     Store
	namespace string
	now       func() time.Time
}

// Option configures an ExpiringCache.
type Option func(*ExpiringCache)

// WithClock replaces time.Now, for tests driving virtual time.
func WithClock(now func() time.Time) Option {
	return func(c *ExpiringCache) { c.now = now }
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(c *ExpiringCache) { c.namespace = ns }
}

// New returns a cache over store.
func New(store Store, opts ...Option) *ExpiringCache {
	c := &ExpiringCache{
		store:     store,
		namespace: DefaultNamespace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ExpiringCache) storeKey(key Key) string {
	return c.namespace + string(key)
}

// Set writes value under key, valid for ttl. Encoding and store errors are
// returned; callers that treat caching as best-effort may ignore them.
func (c *ExpiringCache) Set(key Key, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	expiry := c.now().Add(ttl).UnixMilli()
	data, err := json.Marshal(entry{Value: raw, Expiry: &expiry})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry for %s: %w", key, err)
	}

	if err := c.store.SetItem(c.storeKey(key), string(data)); err != nil {
		return fmt.Errorf("failed to write cache entry for %s: %w", key, err)
	}
	return nil
}

// Get decodes the live value under key into out and reports a hit. A
// missing, unreadable, malformed or expired entry is a miss; expired and
// malformed entries are removed from the store.
func (c *ExpiringCache) Get(key Key, out any) bool {
	l := log.L()

	data, ok, err := c.store.GetItem(c.storeKey(key))
	if err != nil {
		l.Warn().Err(err).Str(log.FieldCacheKey, string(key)).Msg("cache read failed")
		return false
	}
	if !ok {
		return false
	}

	e, err := decodeEntry(data)
	if err != nil {
		l.Debug().Err(err).Str(log.FieldCacheKey, string(key)).Msg("discarding malformed cache entry")
		c.remove(key)
		return false
	}

	if c.now().UnixMilli() > *e.Expiry {
		c.remove(key)
		return false
	}

	if err := json.Unmarshal(e.Value, out); err != nil {
		l.Debug().Err(err).Str(log.FieldCacheKey, string(key)).Msg("cache value does not match requested type")
		c.remove(key)
		return false
	}
	return true
}

// Invalidate removes key. It is idempotent and never fails; store errors
// are logged.
func (c *ExpiringCache) Invalidate(key Key) {
	c.remove(key)
}

// Clear removes every key in Keys.
func (c *ExpiringCache) Clear() {
	for _, k := range Keys {
		c.remove(k)
	}
}

func (c *ExpiringCache) remove(key Key) {
	if err := c.store.RemoveItem(c.storeKey(key)); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldCacheKey, string(key)).Msg("cache remove failed")
	}
}

// decodeEntry parses and validates the {value, expiry} shape.
func decodeEntry(data string) (*entry, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()

	var e entry
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("invalid cache entry: %w", err)
	}
	if e.Expiry == nil {
		return nil, fmt.Errorf("cache entry has no expiry")
	}
	if len(e.Value) == 0 || bytes.Equal(bytes.TrimSpace(e.Value), []byte("null")) {
		return nil, fmt.Errorf("cache entry has no value")
	}
	return &e, nil
}
