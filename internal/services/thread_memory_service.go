package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
)

// ThreadStore is the short-term memory surface the orchestrator needs.
type ThreadStore interface {
	GetThreadMemory(ctx context.Context, threadID string) (*models.ThreadMemory, error)
	SaveThreadMemory(ctx context.Context, thread *models.ThreadMemory) error
	ResolveSessionThread(ctx context.Context, sessionID string) (string, error)
}

// ThreadMemoryService persists conversation threads with a sliding 24h TTL.
type ThreadMemoryService struct {
	db  *database.MongoDB
	now func() time.Time
}

// NewThreadMemoryService creates a new thread memory service
func NewThreadMemoryService(db *database.MongoDB) *ThreadMemoryService {
	return &ThreadMemoryService{db: db, now: time.Now}
}

// GetThreadMemory returns the thread, or nil when it does not exist or has
// logically expired. Expired records are left for the cleanup path; reads
// never resurrect them.
func (s *ThreadMemoryService) GetThreadMemory(ctx context.Context, threadID string) (*models.ThreadMemory, error) {
	var thread models.ThreadMemory
	err := s.db.Collection(database.CollectionThreads).
		FindOne(ctx, bson.M{"threadId": threadID}).
		Decode(&thread)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	if thread.Expired(s.now()) {
		log.Printf("🕐 [MEMORY] Thread %s expired, treating as new", threadID)
		return nil, nil
	}

	return &thread, nil
}

// SaveThreadMemory upserts the thread and pushes its expiry forward by the
// full TTL window. Every save refreshes the window.
func (s *ThreadMemoryService) SaveThreadMemory(ctx context.Context, thread *models.ThreadMemory) error {
	now := s.now()
	thread.UpdatedAt = now
	thread.ExpiresAt = now.Add(models.ThreadTTL)

	update := bson.M{
		"$set": bson.M{
			"userId":    thread.UserID,
			"messages":  thread.Messages,
			"metadata":  thread.Metadata,
			"lastAgent": thread.LastAgent,
			"updatedAt": thread.UpdatedAt,
			"expiresAt": thread.ExpiresAt,
		},
	}

	_, err := s.db.Collection(database.CollectionThreads).UpdateOne(
		ctx,
		bson.M{"threadId": thread.ThreadID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save thread %s: %w", thread.ThreadID, err)
	}

	return nil
}

// ResolveSessionThread maps an external session id to a stable thread id,
// creating a fresh mapping when none exists or the old one expired. The
// mapping carries the same sliding TTL as the thread it points at.
func (s *ThreadMemoryService) ResolveSessionThread(ctx context.Context, sessionID string) (string, error) {
	now := s.now()

	var mapping models.SessionThread
	err := s.db.Collection(database.CollectionSessionThreads).
		FindOne(ctx, bson.M{"sessionId": sessionID}).
		Decode(&mapping)

	if err == nil && mapping.ExpiresAt.After(now) {
		s.touchSessionThread(ctx, sessionID, now)
		return mapping.ThreadID, nil
	}
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("failed to resolve session %s: %w", sessionID, err)
	}

	threadID := uuid.New().String()
	_, err = s.db.Collection(database.CollectionSessionThreads).UpdateOne(
		ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{
			"threadId":  threadID,
			"updatedAt": now,
			"expiresAt": now.Add(models.ThreadTTL),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session mapping %s: %w", sessionID, err)
	}

	log.Printf("🧵 [MEMORY] New thread %s for session %s", threadID, sessionID)
	return threadID, nil
}

func (s *ThreadMemoryService) touchSessionThread(ctx context.Context, sessionID string, now time.Time) {
	_, err := s.db.Collection(database.CollectionSessionThreads).UpdateOne(
		ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{
			"updatedAt": now,
			"expiresAt": now.Add(models.ThreadTTL),
		}},
	)
	if err != nil {
		log.Printf("⚠️ [MEMORY] Failed to refresh session %s: %v", sessionID, err)
	}
}
