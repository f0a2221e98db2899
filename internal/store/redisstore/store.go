package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the redis client for the two things the pipeline uses it
// for: the latest-suggestion cache and the row-change event channel.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func suggestionKey(conversationID, kind string) string {
	return fmt.Sprintf("suggest:%s:%s", conversationID, kind)
}

// SetSuggestion caches the serialized latest draft for (conversation, kind).
func (s *Store) SetSuggestion(ctx context.Context, conversationID, kind string, payload []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, suggestionKey(conversationID, kind), payload, ttl).Err()
}

// GetSuggestion returns the cached draft or redis.Nil on a miss.
func (s *Store) GetSuggestion(ctx context.Context, conversationID, kind string) ([]byte, error) {
	return s.rdb.Get(ctx, suggestionKey(conversationID, kind)).Bytes()
}

// Publish fans a row-change event out to subscribed presentation layers.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}
