package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectline/lcse/internal/models"
)

func TestNormalizePhoneStripsNonDigits(t *testing.T) {
	assert.Equal(t, "919876543210", normalizePhone("+91 98765-43210"))
}

func TestLookupByPhoneMissingWithNilDB(t *testing.T) {
	s, err := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), nil, 10)
	require.NoError(t, err)
	_, err = s.LookupByPhone(context.Background(), "9876543210")
	assert.ErrorIs(t, err, ErrMissing)
}

// TestPutGetDeleteRoundTrip requires a reachable Redis instance; it skips
// when REDIS_ADDR is not set, matching the teacher's style of skipping
// tests that need a live external dependency rather than mocking it away.
func TestPutGetDeleteRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping live redis round trip")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	s, err := NewRedisStore(client, nil, 10)
	require.NoError(t, err)

	ctx := context.Background()
	snap := models.Customer{Name: "Rajesh", Phone: "9876543210", State: "Uttar Pradesh"}
	require.NoError(t, s.Put(ctx, "call-1", snap, time.Minute))

	got, err := s.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	require.NoError(t, s.Delete(ctx, "call-1"))
	_, err = s.Get(ctx, "call-1")
	assert.Error(t, err)
}

// TestLocalFallbackServesAfterRedisUnreachable exercises the local-cache
// path directly: Put always populates it, and Get consults it whenever
// Redis errors.
func TestLocalFallbackServesAfterRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listening
	s, err := NewRedisStore(client, nil, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	snap := models.Customer{Name: "Rajesh", Phone: "9876543210"}
	require.NoError(t, s.Put(ctx, "call-1", snap, time.Minute))

	got, err := s.Get(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}
