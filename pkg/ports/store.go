package ports

import (
	"context"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// StateStore persists execution state snapshots by session id.
// Implementations must return domain.ErrSessionNotFound for unknown ids
// and must not alias stored snapshots with callers.
type StateStore interface {
	Save(ctx context.Context, sessionID string, state *domain.ExecutionState) error
	Load(ctx context.Context, sessionID string) (*domain.ExecutionState, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// CheckpointStore persists named checkpoints per session.
// Implementations must return domain.ErrCheckpointNotFound for unknown
// checkpoint ids.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error
	LoadCheckpoint(ctx context.Context, sessionID, checkpointID string) (*domain.Checkpoint, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error)
}
