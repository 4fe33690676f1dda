package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisConfig holds connection parameters for the Redis store
type RedisConfig struct {
	Addrs    []string
	Password string
	TTL      time.Duration
}

// Redis is a key-value store backed by Redis through rueidis
type Redis struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &Redis{client: client, ttl: cfg.TTL}, nil
}

func newRedisWithClient(c rueidis.Client, ttl time.Duration) *Redis {
	return &Redis{client: c, ttl: ttl}
}

// Get retrieves a value by key
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := r.client.B().Get().Key(key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, &Error{Op: OpGet, Err: err}
	}
	return data, nil
}

// Set stores a value, with the configured expiration if any
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	var cmd rueidis.Completed
	if r.ttl > 0 {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(r.ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpSet, Err: err}
	}
	return nil
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	cmd := r.client.B().Ping().Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client
func (r *Redis) Close() {
	r.client.Close()
}
