package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("colorbook-refiner/internal/completion")

const defaultCacheTTL = 24 * time.Hour

// Store is the key/value backend behind Cached.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(k string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + ":" + k
	}
	return k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

type CacheOptions struct {
	TTL    time.Duration
	Logger *zap.Logger
}

// Cached serves repeated requests from a Store. Cache failures are logged and
// never fail the call.
type Cached struct {
	next   Completer
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Completer, store Store, opts CacheOptions) *Cached {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, store: store, ttl: ttl, logger: logger}
}

type cachedEntry struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

func (c *Cached) Complete(ctx context.Context, req Request) (Response, error) {
	key := CacheKey(req)

	ctx, span := tracer.Start(ctx, "completion.cache")
	defer span.End()

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("completion cache read failed", zap.Error(err))
	case ok:
		var entry cachedEntry
		if err := json.Unmarshal([]byte(raw), &entry); err == nil && strings.TrimSpace(entry.Text) != "" {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return Response{Text: entry.Text, Model: entry.Model, Cached: true}, nil
		}
		c.logger.Warn("completion cache entry unreadable", zap.String("key", key))
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return Response{}, err
	}

	encoded, err := json.Marshal(cachedEntry{Text: resp.Text, Model: resp.Model})
	if err == nil {
		err = c.store.Set(ctx, key, string(encoded), c.ttl)
	}
	if err != nil {
		c.logger.Warn("completion cache write failed", zap.Error(err))
	}
	return resp, nil
}

// CacheKey is stable for identical requests.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.SystemInstruction))
	h.Write([]byte{0})
	h.Write([]byte(req.UserMessage))
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}
