package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"skidoodle/watchparty/internal/watch"
)

const maxUpdateAttempts = 10

// ErrContention is returned when an update keeps losing its WATCH race.
var ErrContention = errors.New("too much contention on shared documents")

// Redis keeps both documents as string keys under a common prefix. Updates
// use WATCH/MULTI and are retried when another writer got there first.
type Redis struct {
	rdb    *redis.Client
	queue  string
	nowKey string
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "watch"
	}
	return &Redis{
		rdb:    rdb,
		queue:  prefix + ":" + queueKey,
		nowKey: prefix + ":" + nowPlayingKey,
	}
}

// OpenRedis connects to url and pings the server.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb, prefix), nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c getter, key string) ([]byte, error) {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) ReadQueue(ctx context.Context) ([]watch.QueueItem, error) {
	b, err := get(ctx, r.rdb, r.queue)
	if err != nil {
		return nil, err
	}
	return decodeQueue(b)
}

func (r *Redis) WriteQueue(ctx context.Context, queue []watch.QueueItem) error {
	b, err := encodeQueue(queue)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.queue, b, 0).Err()
}

func (r *Redis) ReadNowPlaying(ctx context.Context) (watch.NowPlaying, error) {
	b, err := get(ctx, r.rdb, r.nowKey)
	if err != nil {
		return watch.NowPlaying{}, err
	}
	return decodeNowPlaying(b)
}

func (r *Redis) WriteNowPlaying(ctx context.Context, np watch.NowPlaying) error {
	b, err := encodeNowPlaying(np)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.nowKey, b, 0).Err()
}

// Update runs fn inside WATCH on both keys. fn may run more than once.
func (r *Redis) Update(ctx context.Context, fn watch.UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		qb, err := get(ctx, tx, r.queue)
		if err != nil {
			return err
		}
		nb, err := get(ctx, tx, r.nowKey)
		if err != nil {
			return err
		}
		docs, err := decodeDocuments(qb, nb)
		if err != nil {
			return err
		}
		c, err := watch.Apply(docs, fn)
		if err != nil {
			return err
		}
		queue, np, err := encodeChange(c)
		if err != nil {
			return err
		}
		if queue == nil && np == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if queue != nil {
				pipe.Set(ctx, r.queue, queue, 0)
			}
			if np != nil {
				pipe.Set(ctx, r.nowKey, np, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, r.queue, r.nowKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
