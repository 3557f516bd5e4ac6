package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brpag/pix-gateway/internal/core/domain"
	"github.com/brpag/pix-gateway/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "pix:charge:"

// Redis is the shared store variant. Expiry is delegated to server-side
// TTLs, so entries survive restarts and are visible across replicas.
// Redis failures degrade to cache misses; they never fail a charge.
type Redis struct {
	client *redis.Client
	window time.Duration
}

// NewRedis wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedis(client *redis.Client, window time.Duration) *Redis {
	return &Redis{client: client, window: window}
}

// Lookup returns the charge cached for a CPF, if the key still lives.
func (r *Redis) Lookup(ctx context.Context, cpf string) (*domain.Charge, bool) {
	key := redisKeyPrefix + normalizeKey(cpf)

	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		telemetry.Logger.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}

	var charge domain.Charge
	if err := json.Unmarshal([]byte(raw), &charge); err != nil {
		telemetry.Logger.Warn("cache entry corrupt, dropping",
			zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, key)
		return nil, false
	}
	return &charge, true
}

// Store records the charge under the window's TTL, overwriting any
// previous value.
func (r *Redis) Store(ctx context.Context, cpf string, charge *domain.Charge) {
	key := redisKeyPrefix + normalizeKey(cpf)

	data, err := json.Marshal(charge)
	if err != nil {
		telemetry.Logger.Warn("cache store marshal failed", zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, data, r.window).Err(); err != nil {
		telemetry.Logger.Warn("cache store failed", zap.Error(err))
	}
}

// SweepExpired is a no-op: Redis expires keys server-side.
func (r *Redis) SweepExpired(context.Context) int {
	return 0
}
