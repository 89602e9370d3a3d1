package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wudi/edgecache/internal/logging"
)

const redisTimeout = 200 * time.Millisecond

// RedisStore keeps partitions in Redis so several worker instances can share
// one cache. Backend failures are treated as misses, not errors.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. prefix namespaces all keys,
// e.g. "ec:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ec:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) partitionsKey() string { return s.prefix + "partitions" }
func (s *RedisStore) keysKey(name string) string {
	return s.prefix + "keys:" + name
}
func (s *RedisStore) entryKey(name, key string) string {
	return s.prefix + "entry:" + name + ":" + key
}

func (s *RedisStore) Open(name string) (Partition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.SAdd(ctx, s.partitionsKey(), name).Err(); err != nil {
		return nil, err
	}
	return &redisPartition{store: s, name: name}, nil
}

func (s *RedisStore) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	return s.client.SMembers(ctx, s.partitionsKey()).Result()
}

func (s *RedisStore) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys, err := s.client.SMembers(ctx, s.keysKey(name)).Result()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.client.Del(ctx, s.entryKey(name, key)).Err(); err != nil {
			logging.Warn("redis partition entry delete failed",
				zap.String("partition", name), zap.Error(err))
		}
	}

	if err := s.client.Del(ctx, s.keysKey(name)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.partitionsKey(), name).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisPartition struct {
	store *RedisStore
	name  string
}

func (p *redisPartition) Get(key string) (*Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := p.store.client.Get(ctx, p.store.entryKey(p.name, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Warn("redis cache get failed, treating as miss", zap.Error(err))
		}
		return nil, false
	}

	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		logging.Warn("redis cache decode failed, treating as miss", zap.Error(err))
		return nil, false
	}
	return &entry, true
}

func (p *redisPartition) Set(key string, entry *Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := p.store.client.Set(ctx, p.store.entryKey(p.name, key), buf.Bytes(), 0).Err(); err != nil {
		return err
	}
	return p.store.client.SAdd(ctx, p.store.keysKey(p.name), key).Err()
}

func (p *redisPartition) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	n, err := p.store.client.SCard(ctx, p.store.keysKey(p.name)).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
