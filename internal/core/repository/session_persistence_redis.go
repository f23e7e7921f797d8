package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionPersistence implements domain.SessionPersistence on Redis.
// Keys carry a TTL matching the session window, but expiry is still
// decided by the session store at read time.
type RedisSessionPersistence struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSessionPersistence creates a Redis-backed session persistence.
func NewRedisSessionPersistence(client redis.Cmdable, prefix string) *RedisSessionPersistence {
	if prefix == "" {
		prefix = "eventgate:session:"
	}
	return &RedisSessionPersistence{client: client, prefix: prefix}
}

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cli, nil
}

func (p *RedisSessionPersistence) key(k string) string {
	return p.prefix + k
}

// Load returns the blob stored under key, or (nil, nil) when absent.
func (p *RedisSessionPersistence) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := p.client.Get(ctx, p.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return b, nil
}

// Save stores blob under key. A zero ttl keeps the key until deleted.
func (p *RedisSessionPersistence) Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if err := p.client.Set(ctx, p.key(key), blob, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (p *RedisSessionPersistence) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, p.key(key)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
