package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
)

// CheckpointStore records orchestration progress for crash recovery and
// tool executions for auditing. Checkpoints are append-only; task results
// are write-only.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	LatestCheckpoint(ctx context.Context, threadID string) (*models.Checkpoint, error)
	RecordTaskResult(ctx context.Context, tr *models.TaskResult)
}

// CheckpointService persists checkpoints and task results.
type CheckpointService struct {
	db  *database.MongoDB
	now func() time.Time
}

// NewCheckpointService creates a new checkpoint service
func NewCheckpointService(db *database.MongoDB) *CheckpointService {
	return &CheckpointService{db: db, now: time.Now}
}

// SaveCheckpoint appends a checkpoint. Existing checkpoints are never
// updated; the latest one wins on recovery.
func (s *CheckpointService) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	cp.CreatedAt = s.now()
	_, err := s.db.Collection(database.CollectionCheckpoints).InsertOne(ctx, cp)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %s: %w", cp.ThreadID, err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for the thread by
// createdAt, or nil when the thread has none.
func (s *CheckpointService) LatestCheckpoint(ctx context.Context, threadID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.Collection(database.CollectionCheckpoints).
		FindOne(ctx,
			bson.M{"threadId": threadID},
			options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		).
		Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint for thread %s: %w", threadID, err)
	}
	return &cp, nil
}

// RecordTaskResult writes an audit record. Fire-and-forget: the result is
// never read back on the request path and a failed write must not fail
// the turn, so errors only log.
func (s *CheckpointService) RecordTaskResult(ctx context.Context, tr *models.TaskResult) {
	tr.CreatedAt = s.now()
	_, err := s.db.Collection(database.CollectionTaskResults).InsertOne(ctx, tr)
	if err != nil {
		log.Printf("⚠️ [AUDIT] Failed to record task result for thread %s: %v", tr.ThreadID, err)
	}
}
