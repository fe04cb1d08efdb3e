package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBacking is the Context Cache's durable tier, letting entries survive
// a process restart and be shared across replicas.
type RedisBacking struct {
	client redis.UniversalClient
}

func NewRedisBacking(addr, password string, db int) (*RedisBacking, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("context cache redis ping: %w", err)
	}
	return &RedisBacking{client: client}, nil
}

func redisKey(fingerprint string) string {
	return "zoe:cache:" + fingerprint
}

func (b *RedisBacking) Get(ctx context.Context, fingerprint string) (Entry, bool) {
	val, err := b.client.Get(ctx, redisKey(fingerprint)).Result()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (b *RedisBacking) Set(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, redisKey(e.Fingerprint), data, e.TTL).Err()
}

func (b *RedisBacking) Delete(ctx context.Context, fingerprint string) error {
	return b.client.Del(ctx, redisKey(fingerprint)).Err()
}

func (b *RedisBacking) Close() error {
	return b.client.Close()
}
