package weather

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache keeps forecasts per city. A miss is (nil, false, nil).
type Cache interface {
	Name() string
	Get(ctx context.Context, city string) (*Forecast, bool, error)
	Set(ctx context.Context, city string, f *Forecast, ttl time.Duration) error
	Close() error
}

type memoryItem struct {
	forecast Forecast
	expires  time.Time
}

type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisCache struct {
	options RedisOptions
	client  *redis.Client
}

func cacheKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func (mc *MemoryCache) Name() string {
	return "memory"
}

func (mc *MemoryCache) Get(ctx context.Context, city string) (*Forecast, bool, error) {

	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := cacheKey(city)
	item, ok := mc.items[key]
	if !ok {
		return nil, false, nil
	}
	if mc.now().After(item.expires) {
		delete(mc.items, key)
		return nil, false, nil
	}
	f := item.forecast
	return &f, true, nil
}

func (mc *MemoryCache) Set(ctx context.Context, city string, f *Forecast, ttl time.Duration) error {

	if f == nil {
		return errors.New("forecast is required")
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.items[cacheKey(city)] = memoryItem{
		forecast: *f,
		expires:  mc.now().Add(ttl),
	}
	return nil
}

func (mc *MemoryCache) Close() error {
	return nil
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (rc *RedisCache) Name() string {
	return "redis"
}

func (rc *RedisCache) key(city string) string {
	return rc.options.Prefix + cacheKey(city)
}

func (rc *RedisCache) Get(ctx context.Context, city string) (*Forecast, bool, error) {

	data, err := rc.client.Get(ctx, rc.key(city)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithStack(err)
	}

	f := &Forecast{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, false, errors.Wrap(err, "redis cache entry")
	}
	return f, true, nil
}

func (rc *RedisCache) Set(ctx context.Context, city string, f *Forecast, ttl time.Duration) error {

	data, err := json.Marshal(f)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(rc.client.Set(ctx, rc.key(city), data, ttl).Err())
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func NewRedisCache(ctx context.Context, options RedisOptions) (*RedisCache, error) {

	if options.Prefix == "" {
		options.Prefix = "weightapi:weather:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	return &RedisCache{
		options: options,
		client:  client,
	}, nil
}
