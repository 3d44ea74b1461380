package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "stylist:session:"
	redisUpdateRetries = 5
)

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps sessions as JSON values that expire after ttl of inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A non-positive ttl keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

// CreateSession writes a new session key.
func (s *RedisStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisKey(session.ID), payload, s.ttl).Result()
	if err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return Session{}, fmt.Errorf("store session: id %s already exists", session.ID)
	}
	return session, nil
}

// GetSession reads a session key.
func (s *RedisStore) GetSession(ctx context.Context, id string) (Session, error) {
	return s.load(ctx, s.client, id)
}

// UpdateSession applies fn inside a WATCH/MULTI transaction, retrying when a
// concurrent writer touched the key first.
func (s *RedisStore) UpdateSession(ctx context.Context, id string, fn func(Session) (Session, error)) (Session, error) {
	key := redisKey(id)
	var updated Session

	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		next.ID = id
		next.UpdatedAt = time.Now()
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}

	for attempt := 0; attempt < redisUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Session{}, err
	}
	return Session{}, fmt.Errorf("update session %s: too much contention", id)
}

// DeleteSession removes a session key.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the redis connection pool.
func (s *RedisStore) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisStore) load(ctx context.Context, getter redisGetter, id string) (Session, error) {
	payload, err := getter.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}
