package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Well-known namespaces. Each namespace carries its own default TTL because
// the payloads age differently: raw document bytes stay useful for days,
// extraction results for a day, and upstream API responses go stale quickly.
const (
	NamespaceRaw  = "raw"
	NamespaceText = "text"
	NamespaceAPI  = "api"
)

// DefaultTTLs maps namespaces to their default expiry. Values are tunable
// configuration, not invariants.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		NamespaceRaw:  7 * 24 * time.Hour,
		NamespaceText: 24 * time.Hour,
		NamespaceAPI:  time.Hour,
	}
}

// Backend is the minimal contract a key/value service must satisfy. Entries
// carry an absolute expiry; a backend never returns an expired entry.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

// Store is a namespaced key/value cache with per-namespace TTL defaults.
// Backend failures are never surfaced to callers: Get degrades to a miss and
// Set is best-effort. Safe for concurrent use when the backend is.
type Store struct {
	backend Backend
	ttls    map[string]time.Duration
	group   singleflight.Group
}

// NewStore wraps a backend. ttls overrides the default per-namespace TTLs for
// any namespace present in the map; pass nil to keep defaults.
func NewStore(backend Backend, ttls map[string]time.Duration) *Store {
	merged := DefaultTTLs()
	for ns, d := range ttls {
		if d > 0 {
			merged[ns] = d
		}
	}
	return &Store{backend: backend, ttls: merged}
}

// TTL returns the default TTL for a namespace, or an hour for namespaces the
// store was never told about.
func (s *Store) TTL(namespace string) time.Duration {
	if d, ok := s.ttls[namespace]; ok {
		return d
	}
	return time.Hour
}

// Get returns the cached value for namespace+key, or absent. It never blocks
// on a remote fetch and never returns an expired entry.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	v, ok, err := s.backend.Get(ctx, namespace, key)
	if err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache get failed; treating as miss")
		return nil, false
	}
	return v, ok
}

// Set stores value under namespace+key, overwriting unconditionally. A ttl of
// zero or less selects the namespace default. Write failures are logged and
// swallowed.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.TTL(namespace)
	}
	if err := s.backend.Set(ctx, namespace, key, value, ttl); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache set failed; continuing without cache")
	}
}

// Invalidate removes the entry immediately regardless of remaining TTL.
func (s *Store) Invalidate(ctx context.Context, namespace, key string) {
	if err := s.backend.Delete(ctx, namespace, key); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache delete failed")
	}
}

// GetOrCompute returns the cached value when present, otherwise invokes
// produce once, stores its result, and returns it. Concurrent callers for the
// same namespace+key share a single in-flight producer. Producer errors are
// returned to every waiting caller and nothing is stored.
func (s *Store) GetOrCompute(ctx context.Context, namespace, key string, produce func(context.Context) ([]byte, error), ttl time.Duration) ([]byte, error) {
	if v, ok := s.Get(ctx, namespace, key); ok {
		return v, nil
	}
	v, err, _ := s.group.Do(namespace+"\x00"+key, func() (any, error) {
		// Re-check under the flight: another caller may have filled the slot
		// between our miss and acquiring the flight.
		if v, ok := s.Get(ctx, namespace, key); ok {
			return v, nil
		}
		computed, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(ctx, namespace, key, computed, ttl)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
