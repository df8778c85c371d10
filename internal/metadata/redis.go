package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"nlq-resolver/internal/models"
)

const DefaultRedisKey = "nlq:semantic_metadata"

// RedisStore reads the JSON snapshot stored under a single key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (*models.SemanticMetadata, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: key %s", ErrSnapshotNotFound, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return Decode(data, FormatJSON)
}

// Publish stores md under the key. Used by tooling that seeds a snapshot.
func (s *RedisStore) Publish(ctx context.Context, md *models.SemanticMetadata) error {
	if err := Validate(md); err != nil {
		return err
	}
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
