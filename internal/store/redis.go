package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key this backend touches.
const DefaultRedisPrefix = "ctxbridge:"

// RedisBackend stores values in Redis. Each key has a value and a version
// counter; commits are announced on a pub/sub channel.
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisBackend connects to redisURL and verifies the connection.
func NewRedisBackend(redisURL string, logger *slog.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &RedisBackend{client: redis.NewClient(opts), prefix: DefaultRedisPrefix, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		r.client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return r, nil
}

func (r *RedisBackend) valueKey(key string) string   { return r.prefix + "value:" + key }
func (r *RedisBackend) versionKey(key string) string { return r.prefix + "version:" + key }
func (r *RedisBackend) channel() string              { return r.prefix + "changes" }

func (r *RedisBackend) Load(ctx context.Context, key string) (Entry, error) {
	vals, err := r.client.MGet(ctx, r.valueKey(key), r.versionKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("load %s: %w", key, err)
	}
	value, _ := vals[0].(string)
	rawVersion, _ := vals[1].(string)
	if rawVersion == "" {
		return Entry{}, nil
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse version of %s: %w", key, err)
	}
	return Entry{Value: []byte(value), Version: version}, nil
}

func (r *RedisBackend) Save(ctx context.Context, key string, value []byte, writer string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.valueKey(key), value, 0)
		incr = pipe.Incr(ctx, r.versionKey(key))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	version := incr.Val()
	r.publish(ctx, Change{Key: key, Version: version, Writer: writer})
	return version, nil
}

func (r *RedisBackend) CompareAndSave(ctx context.Context, key string, expected int64, value []byte, writer string) (int64, error) {
	versionKey := r.versionKey(key)
	var incr *redis.IntCmd

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !stderrors.Is(err, redis.Nil) {
			return err
		}
		if current != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.valueKey(key), value, 0)
			incr = pipe.Incr(ctx, versionKey)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case stderrors.Is(err, ErrVersionConflict), stderrors.Is(err, redis.TxFailedErr):
		return 0, ErrVersionConflict
	case err != nil:
		return 0, fmt.Errorf("save %s: %w", key, err)
	}

	version := incr.Val()
	r.publish(ctx, Change{Key: key, Version: version, Writer: writer})
	return version, nil
}

// publish is best effort: the write already committed.
func (r *RedisBackend) publish(ctx context.Context, c Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, r.channel(), payload).Err(); err != nil {
		r.logger.Warn("publish change failed", "key", c.Key, "error", err)
	}
}

// Watch subscribes to the change channel. The subscription is confirmed
// before Watch returns.
func (r *RedisBackend) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					r.logger.Warn("bad change message", "error", err)
					continue
				}
				fn(c)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			pubsub.Close()
			wg.Wait()
		})
	}, nil
}

// Ping checks if Redis is reachable.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
