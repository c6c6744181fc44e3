package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// RedisStore keeps the session under two keys, <prefix>:credential and
// <prefix>:identity, written in one MULTI/EXEC and removed with one DEL.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store using rdb.  A positive ttl expires both
// keys together; pass the credential lifetime so a stale session
// disappears on its own.
func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "parcel:session"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) credentialKey() string { return s.prefix + ":credential" }
func (s *RedisStore) identityKey() string   { return s.prefix + ":identity" }

func (s *RedisStore) Load(ctx context.Context) (Persisted, error) {
	vals, err := s.rdb.MGet(ctx, s.credentialKey(), s.identityKey()).Result()
	if err != nil {
		return Persisted{}, fmt.Errorf("load session: %w", err)
	}
	var p Persisted
	if cred, ok := vals[0].(string); ok {
		p.Credential = cred
	}
	if raw, ok := vals[1].(string); ok && raw != "" {
		var id model.Identity
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			return Persisted{}, fmt.Errorf("decode cached identity: %w", err)
		}
		p.Identity = &id
	}
	return p, nil
}

func (s *RedisStore) Save(ctx context.Context, p Persisted) error {
	raw, err := json.Marshal(p.Identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.credentialKey(), p.Credential, s.ttl)
		pipe.Set(ctx, s.identityKey(), raw, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.credentialKey(), s.identityKey()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
