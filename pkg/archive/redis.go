package archive

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
)

const (
	// redisKeyPrefix namespaces all archive hashes in the keyspace.
	redisKeyPrefix = "suggest:archive:"

	blobField    = "blob"
	modTimeField = "modtime"

	redisOpTimeout = 30 * time.Second
)

// RedisConfig holds the Redis connection parameters.
type RedisConfig struct {
	// Addr is the Redis server address in the format "host:port".
	Addr string

	// Password is the Redis password (empty string for no password).
	Password string

	// DB is the Redis database number. Redis Cluster only supports DB 0.
	DB int
}

// RedisProvider persists archives in Redis, one hash per archive key with
// the gzip blob and its mod-time as fields. Compound keys of the form
// "index/suffix" work transparently, making it a CompoundArchiveProvider.
type RedisProvider struct {
	client *redis.Client
}

var _ suggest.CompoundArchiveProvider = (*RedisProvider)(nil)

// NewRedisProvider connects and immediately verifies both connectivity and
// write access, so a read-only replica or wrong address fails at startup.
func NewRedisProvider(config RedisConfig) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	probeKey := redisKeyPrefix + "write-probe"
	if err := client.Set(ctx, probeKey, "1", time.Minute).Err(); err != nil {
		return nil, fmt.Errorf("no write access to Redis: %w", err)
	}
	client.Del(ctx, probeKey)

	return &RedisProvider{client: client}, nil
}

func redisKey(key string) string { return redisKeyPrefix + key }

func (p *RedisProvider) HasData(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := p.client.Exists(ctx, redisKey(key)).Result()
	return err == nil && n > 0
}

func (p *RedisProvider) LastModTime(key string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	raw, err := p.client.HGet(ctx, redisKey(key), modTimeField).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("fetching archive mod-time for %s: %w", key, err)
	}
	mod, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("corrupt mod-time for archive %s: %w", key, err)
	}
	return mod, nil
}

// Load downloads the blob into a temporary file that the caller removes
// after use.
func (p *RedisProvider) Load(key string) (*suggest.Archive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	fields, err := p.client.HMGet(ctx, redisKey(key), blobField, modTimeField).Result()
	if err != nil {
		return nil, fmt.Errorf("loading archive %s: %w", key, err)
	}
	blob, ok := fields[0].(string)
	if !ok {
		return nil, fmt.Errorf("no archive stored for %s", key)
	}
	var mod int64 = -1
	if raw, ok := fields[1].(string); ok {
		if mod, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt mod-time for archive %s: %w", key, err)
		}
	}

	tmp, err := os.CreateTemp("", "suggest-archive-*.gz")
	if err != nil {
		return nil, fmt.Errorf("creating download file for archive %s: %w", key, err)
	}
	if _, err := tmp.Write([]byte(blob)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("writing download file for archive %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	return &suggest.Archive{File: tmp.Name(), ModTime: mod, Temp: true}, nil
}

func (p *RedisProvider) Store(key string, archive *suggest.Archive) error {
	blob, err := os.ReadFile(archive.File)
	if err != nil {
		return fmt.Errorf("reading archive blob for %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	err = p.client.HSet(ctx, redisKey(key),
		blobField, blob,
		modTimeField, strconv.FormatInt(archive.ModTime, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("storing archive %s: %w", key, err)
	}
	return nil
}

// IndexSuffixes scans the keyspace for archives stored under compound keys
// of the given index.
func (p *RedisProvider) IndexSuffixes(indexName string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	prefix := redisKey(indexName + "/")
	var suffixes []string
	iter := p.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		suffixes = append(suffixes, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil
	}
	return suffixes
}

// Close releases the Redis connection pool.
func (p *RedisProvider) Close() error { return p.client.Close() }
