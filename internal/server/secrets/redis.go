package secrets

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// createIfAbsentScript treats a missing or empty key as absent, matching
// Read, and does the check and the write in one step.
const createIfAbsentScript = `
local current = redis.call("GET", KEYS[1])
if current and current ~= "" then
  return current
end
redis.call("SET", KEYS[1], ARGV[1])
return ARGV[1]
`

var createIfAbsentLua = redis.NewScript(createIfAbsentScript)

// RedisBackend stores each key as a plain string value without expiry.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAbsent
		}
		return nil, err
	}
	if len(v) == 0 {
		return nil, ErrAbsent
	}
	return v, nil
}

func (r *RedisBackend) Write(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *RedisBackend) CreateIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	v, err := createIfAbsentLua.Run(ctx, r.client, []string{r.prefix + key}, value).Text()
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}
