// Package redis persists execution state in Redis, with an optional
// distributed locker for multi-process hosts. Sessions are stored as
// versioned JSON blobs plus a ZSET index whose scores double as expiry
// times for lazy cleanup.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/switchyard-dev/switchyard/internal/runtime"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Store implements ports.StateStore and ports.CheckpointStore over Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "switchyard:session:",
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) checkpointKey(sessionID string) string {
	return s.prefix + "checkpoints:" + sessionID
}

// Save persists the state blob and indexes the session.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.ExecutionState) error {
	data, err := runtime.SerializeState(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)

	// Index score is the expiry instant; infinite-TTL sessions get a
	// far-future score so lazy cleanup never prunes them.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: sessionID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state from Redis.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ExecutionState, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	state, err := runtime.DeserializeState([]byte(val))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize state: %w", err)
	}
	return state, nil
}

// Delete removes the session, its index entry and its checkpoints.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.Del(ctx, s.checkpointKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns active sessions, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// SaveCheckpoint stores a checkpoint in the session's checkpoint hash.
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.checkpointKey(sessionID), cp.ID, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.checkpointKey(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves one checkpoint by id.
func (s *Store) LoadCheckpoint(ctx context.Context, sessionID, checkpointID string) (*domain.Checkpoint, error) {
	val, err := s.client.HGet(ctx, s.checkpointKey(sessionID), checkpointID).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints returns the session's checkpoints ordered by creation.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error) {
	entries, err := s.client.HGetAll(ctx, s.checkpointKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]*domain.Checkpoint, 0, len(entries))
	for _, val := range entries {
		var cp domain.Checkpoint
		if err := json.Unmarshal([]byte(val), &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
