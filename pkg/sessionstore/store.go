// Package sessionstore implements the Session Store (spec §4.9): the
// hand-off point between the call-trigger path and the engine, a
// process-wide cache keyed by the provider's call id, backed by Redis with
// an in-process LRU fallback for read-through resilience, and a relational
// fallback lookup by phone number (spec §4.9, §9).
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/logger"
)

// ErrMissing is returned by Get when no snapshot exists for a call id.
var ErrMissing = errs.MissingContext("sessionstore", "")

// Store is the Session Store capability interface (spec §9).
type Store interface {
	Put(ctx context.Context, callID string, snapshot models.Customer, ttl time.Duration) error
	Get(ctx context.Context, callID string) (models.Customer, error)
	Delete(ctx context.Context, callID string) error
	// LookupByPhone is the relational fallback used by RESOLVE_CONTEXT when
	// the primary store has not been populated within the grace period.
	LookupByPhone(ctx context.Context, phone string) (models.Customer, error)
}

// RedisStore backs the Session Store with Redis, falling back to a local
// LRU cache on Redis errors, mirroring the teacher's cache.global pattern
// of a shared backend plus a local fallback layer.
type RedisStore struct {
	redis *redis.Client
	local *lru.Cache[string, string]
	db    *gorm.DB
	log   *zap.Logger
}

// NewRedisStore creates a Store. db is the relational fallback source for
// LookupByPhone (contract only, schema owned by the excluded CRUD layer);
// it may be nil if the secondary lookup is disabled by policy (spec §9).
func NewRedisStore(client *redis.Client, db *gorm.DB, localCacheSize int) (*RedisStore, error) {
	if localCacheSize <= 0 {
		localCacheSize = 1000
	}
	local, err := lru.New[string, string](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: building local cache: %w", err)
	}
	return &RedisStore{redis: client, local: local, db: db, log: logger.Named("sessionstore")}, nil
}

func key(callID string) string {
	return "lcse:session:" + callID
}

// Put writes the customer snapshot with a TTL (spec §6: <= 2 hours).
func (s *RedisStore) Put(ctx context.Context, callID string, snapshot models.Customer, ttl time.Duration) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, key(callID), raw, ttl).Err(); err != nil {
		s.log.Warn("redis put failed, writing to local fallback only", zap.Error(err))
	}
	s.local.Add(callID, string(raw))
	return nil
}

// Get returns the snapshot for callID, or ErrMissing if absent from both
// the shared store and the local fallback.
func (s *RedisStore) Get(ctx context.Context, callID string) (models.Customer, error) {
	raw, err := s.redis.Get(ctx, key(callID)).Result()
	if err == nil {
		return unmarshalSnapshot(raw)
	}
	if err != redis.Nil {
		s.log.Warn("redis get failed, checking local fallback", zap.Error(err))
	}
	if raw, ok := s.local.Get(callID); ok {
		return unmarshalSnapshot(raw)
	}
	return models.Customer{}, ErrMissing
}

// Delete removes the snapshot at terminal stage (spec §4.9).
func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	if err := s.redis.Del(ctx, key(callID)).Err(); err != nil {
		s.log.Warn("redis delete failed", zap.Error(err))
	}
	s.local.Remove(callID)
	return nil
}

// LookupByPhone is the secondary relational lookup attempted when the
// primary store has not been populated within the 10s grace period (spec
// §4.9, §9). It joins against the most recent CallRecord for that phone
// number rather than a customer table, since the customer schema itself is
// an external collaborator out of scope (spec §1).
func (s *RedisStore) LookupByPhone(ctx context.Context, phone string) (models.Customer, error) {
	if s.db == nil {
		return models.Customer{}, ErrMissing
	}
	normalized := normalizePhone(phone)
	var record models.CallRecord
	err := s.db.WithContext(ctx).
		Where("call_id LIKE ?", "%"+normalized).
		Order("started_at DESC").
		First(&record).Error
	if err != nil {
		return models.Customer{}, ErrMissing
	}
	return models.Customer{Phone: normalized}, nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unmarshalSnapshot(raw string) (models.Customer, error) {
	var c models.Customer
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return models.Customer{}, fmt.Errorf("sessionstore: unmarshal snapshot: %w", err)
	}
	return c, nil
}
