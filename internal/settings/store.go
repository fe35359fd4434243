package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresStore reads admin settings from the admin_settings table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a settings store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM admin_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		return "", err
	}
	return value, nil
}

// MemoryStore is an in-memory settings store for tests and dev mode.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore constructs an empty in-memory store; every read falls back
// to its default until Set is called.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key, fallback string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

// Set stores a value, standing in for the admin collaborators that own writes.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

const cachePrefix = "settings:v1:"

// CachedStore layers a Redis read-through cache over another store. Settings
// tolerate eventual consistency: a fee or threshold change is not required to
// apply to in-flight transactions.
type CachedStore struct {
	inner Store
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedStore wraps inner with a Redis cache using the given TTL.
func NewCachedStore(inner Store, cache *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedStore) Get(ctx context.Context, key, fallback string) (string, error) {
	cacheKey := cachePrefix + key
	if v, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
		return v, nil
	} else if err != redis.Nil {
		// Fail open to the inner store on cache errors.
		return s.inner.Get(ctx, key, fallback)
	}

	v, err := s.inner.Get(ctx, key, fallback)
	if err != nil {
		return "", err
	}
	_ = s.cache.Set(ctx, cacheKey, v, s.ttl).Err() // best effort
	return v, nil
}
