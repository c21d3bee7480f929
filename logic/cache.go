package logic

import (
	"context"
	"fedi_core/shared"
	"fmt"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/spaolacci/murmur3"
	"strings"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_cache.go -package mocks fedi_core/logic ICache

// ICache is the lookup cache shared by webfinger discovery and emoji lookups.
// Entries expire after the cache's TTL; a full in-process cache evicts the least recently used entry.
type ICache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte)
	Delete(key string)
}

const redisOpTimeout = 2 * time.Second

// cacheKey builds a compact key from a namespace and arbitrarily long parts (handles, URLs).
func cacheKey(namespace string, parts ...string) string {
	h1, h2 := murmur3.Sum128([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("fedi:%s:%016x%016x", namespace, h1, h2)
}

// NewCache returns a redis-backed cache if an address is configured, and an in-process one otherwise.
func NewCache(cfg *shared.Config, logger shared.ILogger) ICache {
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Secrets.RedisPassword,
			DB:       cfg.Cache.RedisDb,
		})
		logger.Infof("Using redis lookup cache at %s", cfg.Cache.RedisAddr)
		return NewRedisCache(client, logger, cfg.CacheTtl())
	}
	return NewMemoryCache(cfg.Cache.MaxEntries, cfg.CacheTtl())
}

type memoryCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemoryCache(maxEntries int, ttl time.Duration) ICache {
	return &memoryCache{expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

func (mc *memoryCache) Get(key string) ([]byte, bool) {
	return mc.lru.Get(key)
}

func (mc *memoryCache) Set(key string, val []byte) {
	mc.lru.Add(key, val)
}

func (mc *memoryCache) Delete(key string) {
	mc.lru.Remove(key)
}

// redisCache degrades to a miss on any redis error: the cache is an optimization, never a source of truth.
type redisCache struct {
	client *redis.Client
	logger shared.ILogger
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, logger shared.ILogger, ttl time.Duration) ICache {
	return &redisCache{client, logger, ttl}
}

func (rc *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	val, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.Warnf("Redis GET %s failed: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

func (rc *redisCache) Set(key string, val []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rc.client.Set(ctx, key, val, rc.ttl).Err(); err != nil {
		rc.logger.Warnf("Redis SET %s failed: %v", key, err)
	}
}

func (rc *redisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rc.client.Del(ctx, key).Err(); err != nil {
		rc.logger.Warnf("Redis DEL %s failed: %v", key, err)
	}
}
