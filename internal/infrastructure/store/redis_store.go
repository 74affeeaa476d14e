package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/example/shop-bot/internal/domain/order"
	"github.com/redis/go-redis/v9"
)

var _ order.Store = (*RedisOrderStore)(nil)

const (
	redisKeyPrefix   = "shopbot:order:"
	redisIndexKey    = "shopbot:orders"
	redisMaxAttempts = 5
)

var ErrConcurrentUpdate = errors.New("order changed concurrently, retries exhausted")

// RedisOrderStore keeps each order as a JSON value. Update uses WATCH so a
// concurrent writer aborts the transaction instead of being overwritten.
type RedisOrderStore struct {
	client *redis.Client
}

func NewRedisOrderStore(client *redis.Client) *RedisOrderStore {
	return &RedisOrderStore{client: client}
}

func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func orderKey(id string) string {
	return redisKeyPrefix + id
}

// Put stores a new order; existing IDs are rejected
func (s *RedisOrderStore) Put(ctx context.Context, o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	// SADD of an existing ID is a no-op, so both run in one MULTI.
	var created *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, orderKey(o.ID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, o.ID)
		return nil
	})
	if err != nil {
		if created != nil && created.Val() {
			if delErr := s.client.Del(context.WithoutCancel(ctx), orderKey(o.ID)).Err(); delErr != nil {
				log.Printf("[Store] Failed to remove unindexed order %s: %v", o.ID, delErr)
			}
		}
		return err
	}
	if !created.Val() {
		return order.ErrOrderExists
	}
	return nil
}

func (s *RedisOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return s.get(ctx, s.client, id)
}

func (s *RedisOrderStore) get(ctx context.Context, c redis.Cmdable, id string) (*order.Order, error) {
	data, err := c.Get(ctx, orderKey(id)).Bytes()
	if err == redis.Nil {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
	}
	return &o, nil
}

func (s *RedisOrderStore) Update(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	key := orderKey(id)
	var result *order.Order

	txf := func(tx *redis.Tx) error {
		o, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		data, err := json.Marshal(o)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			result = o
		}
		return err
	}

	for i := 0; i < redisMaxAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *RedisOrderStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, redisIndexKey).Result()
	return int(n), err
}
