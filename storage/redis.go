package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/songzhibin97/workflow-graph/types"
)

const (
	recordPrefix = "manifest:record:"
	latestPrefix = "manifest:latest:"
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
// Records live under manifest:record:<id>; manifest:latest:<file> holds the
// ID of the newest record for a file.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStorage connects to Redis and verifies the connection with a ping.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client}, nil
}

func recordKey(id uint64) string {
	return recordPrefix + strconv.FormatUint(id, 10)
}

func latestKey(filePath string) string {
	return latestPrefix + filePath
}

// queueRecord adds the writes for rec to pipe.
func queueRecord(ctx context.Context, pipe redis.Pipeliner, rec types.ManifestRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest %d: %w", rec.ID, err)
	}
	pipe.Set(ctx, recordKey(rec.ID), data, 0)
	pipe.Set(ctx, latestKey(rec.FilePath), strconv.FormatUint(rec.ID, 10), 0)
	return nil
}

// getFromRedis retrieves and unmarshals the value stored at key.
func getFromRedis[T any](ctx context.Context, client *redis.Client, key string) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: key=%s", ErrManifestNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %w", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		return result, nil
	})
}

// SaveManifest saves a record and its latest pointer in one transaction.
func (s *RedisStorage) SaveManifest(ctx context.Context, rec types.ManifestRecord) error {
	return s.SaveManifests(ctx, []types.ManifestRecord{rec})
}

// GetManifest retrieves a manifest record from Redis.
func (s *RedisStorage) GetManifest(ctx context.Context, id uint64) (types.ManifestRecord, error) {
	return getFromRedis[types.ManifestRecord](ctx, s.client, recordKey(id))
}

// LatestManifest retrieves the newest record saved for filePath.
func (s *RedisStorage) LatestManifest(ctx context.Context, filePath string) (types.ManifestRecord, error) {
	id, err := withContext(ctx, func() (uint64, error) {
		key := latestKey(filePath)
		raw, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("%w: key=%s", ErrManifestNotFound, key)
		} else if err != nil {
			return 0, fmt.Errorf("failed to get %s from Redis: %w", key, err)
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt latest pointer %s=%q: %w", key, raw, err)
		}
		return id, nil
	})
	if err != nil {
		return types.ManifestRecord{}, err
	}
	return s.GetManifest(ctx, id)
}

// SaveManifests saves multiple records in one transactional pipeline.
func (s *RedisStorage) SaveManifests(ctx context.Context, recs []types.ManifestRecord) error {
	return withContextError(ctx, func() error {
		pipe := s.client.TxPipeline()
		for _, rec := range recs {
			if err := queueRecord(ctx, pipe, rec); err != nil {
				return err
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for manifests: %w", err)
		}
		return nil
	})
}

// DeleteFile removes every record saved for filePath.
func (s *RedisStorage) DeleteFile(ctx context.Context, filePath string) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, recordPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan manifest keys: %w", err)
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			rec, err := getFromRedis[types.ManifestRecord](ctx, s.client, key)
			if errors.Is(err, ErrManifestNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if rec.FilePath == filePath {
				pipe.Del(ctx, key)
			}
		}
		pipe.Del(ctx, latestKey(filePath))

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %w", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
