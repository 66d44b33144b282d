package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultNamespace prefixes every key written by RedisStore.
const DefaultNamespace = "portal:sessions"

// RedisStore stores sessions in Redis under a key namespace.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

type RedisOptions struct {
	RedisURL  string
	DB        int    // -1 keeps the DB from the URL
	Namespace string // Key namespace, DefaultNamespace when empty
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.RedisURL == "" {
		return nil, errors.New("redis URL is required")
	}
	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}
	return newRedisStore(redis.NewClient(redisOpt), opts.Namespace)
}

func newRedisStore(client *redis.Client, namespace string) (*RedisStore, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Redis session store connected", "namespace", namespace, "db", client.Options().DB)
	return &RedisStore{client: client, namespace: namespace}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) formatKey(key string) string {
	return r.namespace + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.formatKey(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.formatKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.formatKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Keys walks the namespace with SCAN so large keyspaces do not block the server.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	ns := r.namespace + ":"
	iter := r.client.Scan(ctx, 0, ns+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), ns))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
