package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

var deleteIfScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTokens keeps session tokens as plain string keys so expiry is
// enforced by Redis itself.
type RedisTokens struct {
	client *redis.Client
	prefix string
}

func NewRedisTokens(client *redis.Client, prefix string) *RedisTokens {
	if prefix == "" {
		prefix = "attendboard:token:"
	}
	return &RedisTokens{client: client, prefix: prefix}
}

func (t *RedisTokens) Get(ctx context.Context, sessionID string) (string, error) {
	val, err := t.client.Get(ctx, t.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	return val, err
}

func (t *RedisTokens) Set(ctx context.Context, sessionID, token string, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return t.Delete(ctx, sessionID)
		}
	}
	return t.client.Set(ctx, t.prefix+sessionID, token, ttl).Err()
}

func (t *RedisTokens) Delete(ctx context.Context, sessionID string) error {
	return t.client.Del(ctx, t.prefix+sessionID).Err()
}

func (t *RedisTokens) DeleteIf(ctx context.Context, sessionID, token string) error {
	return deleteIfScript.Run(ctx, t.client, []string{t.prefix + sessionID}, token).Err()
}
