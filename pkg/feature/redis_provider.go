package feature

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding flag states.
const DefaultRedisKey = "notifykit:features"

// RedisProvider stores flags in a Redis hash so every process sees the same
// state. Field name is the flag, value is "1" or "0".
type RedisProvider struct {
	client redis.UniversalClient
	key    string
}

// NewRedisProvider returns a provider over client. An empty key uses DefaultRedisKey.
func NewRedisProvider(client redis.UniversalClient, key string) *RedisProvider {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisProvider{client: client, key: key}
}

func (r *RedisProvider) IsEnabled(ctx context.Context, name string) (bool, error) {
	v, err := r.client.HGet(ctx, r.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return false, ErrFlagNotFound
	}
	if err != nil {
		return false, errors.Join(ErrOperationFailed, err)
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Join(ErrInvalidFlag, err)
	}
	return enabled, nil
}

func (r *RedisProvider) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}
	v := "0"
	if enabled {
		v = "1"
	}
	if err := r.client.HSet(ctx, r.key, name, v).Err(); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

func (r *RedisProvider) ListFlags(ctx context.Context) ([]Flag, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.Join(ErrOperationFailed, err)
	}
	out := make([]Flag, 0, len(all))
	for name, v := range all {
		enabled, _ := strconv.ParseBool(v)
		out = append(out, Flag{Name: name, Enabled: enabled})
	}
	slices.SortFunc(out, func(a, b Flag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (r *RedisProvider) Close() error { return nil }
