package jobs

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
	"careerpilot/internal/services"
)

var cleanupDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "assistant_cleanup_deletions_total",
	Help: "Records deleted by the retention cleanup, by kind",
}, []string{"kind"})

// CleanupStats reports what one cleanup pass deleted.
type CleanupStats struct {
	Threads        int64 `json:"threads"`
	SessionThreads int64 `json:"session_threads"`
	Events         int64 `json:"events"`
	Checkpoints    int64 `json:"checkpoints"`
}

// Total returns the number of records deleted across all kinds.
func (s CleanupStats) Total() int64 {
	return s.Threads + s.SessionThreads + s.Events + s.Checkpoints
}

// CleanupJob evicts expired and low-value memory records. Eviction is
// driven by age, importance, and access frequency jointly, never by
// size alone. Safe to run concurrently with live traffic and with
// itself: every delete is a range filter, so a second pass is a no-op.
type CleanupJob struct {
	db     *database.MongoDB
	events services.EventPublisher
	now    func() time.Time
}

// NewCleanupJob creates a new cleanup job
func NewCleanupJob(db *database.MongoDB, events services.EventPublisher) *CleanupJob {
	return &CleanupJob{db: db, events: events, now: time.Now}
}

// eventEligibleForDeletion is the retention predicate for memory events:
// old AND unimportant AND rarely accessed, all three at once.
func eventEligibleForDeletion(e models.MemoryEvent, now time.Time) bool {
	return e.CreatedAt.Before(now.Add(-models.EventRetentionAge)) &&
		e.ImportanceScore < models.EventRetentionImportance &&
		e.AccessCount < models.EventRetentionAccesses
}

// Run executes one cleanup pass and returns what it deleted.
func (j *CleanupJob) Run(ctx context.Context) (CleanupStats, error) {
	log.Println("🧹 [CLEANUP] Starting retention cleanup...")
	start := j.now()
	now := start
	var stats CleanupStats

	res, err := j.db.Collection(database.CollectionThreads).DeleteMany(ctx, bson.M{
		"expiresAt": bson.M{"$lt": now},
	})
	if err != nil {
		log.Printf("🚨 [CLEANUP] Failed to delete expired threads: %v", err)
	} else {
		stats.Threads = res.DeletedCount
	}

	res, err = j.db.Collection(database.CollectionSessionThreads).DeleteMany(ctx, bson.M{
		"expiresAt": bson.M{"$lt": now},
	})
	if err != nil {
		log.Printf("🚨 [CLEANUP] Failed to delete expired session mappings: %v", err)
	} else {
		stats.SessionThreads = res.DeletedCount
	}

	// Mirrors eventEligibleForDeletion
	res, err = j.db.Collection(database.CollectionMemoryEvents).DeleteMany(ctx, bson.M{
		"createdAt":       bson.M{"$lt": now.Add(-models.EventRetentionAge)},
		"importanceScore": bson.M{"$lt": models.EventRetentionImportance},
		"accessCount":     bson.M{"$lt": models.EventRetentionAccesses},
	})
	if err != nil {
		log.Printf("🚨 [CLEANUP] Failed to delete stale events: %v", err)
	} else {
		stats.Events = res.DeletedCount
	}

	res, err = j.db.Collection(database.CollectionCheckpoints).DeleteMany(ctx, bson.M{
		"createdAt": bson.M{"$lt": now.Add(-models.CheckpointRetentionAge)},
	})
	if err != nil {
		log.Printf("🚨 [CLEANUP] Failed to delete old checkpoints: %v", err)
	} else {
		stats.Checkpoints = res.DeletedCount
	}

	cleanupDeletions.WithLabelValues("threads").Add(float64(stats.Threads))
	cleanupDeletions.WithLabelValues("session_threads").Add(float64(stats.SessionThreads))
	cleanupDeletions.WithLabelValues("events").Add(float64(stats.Events))
	cleanupDeletions.WithLabelValues("checkpoints").Add(float64(stats.Checkpoints))

	log.Printf("🧹 [CLEANUP] Done in %v: %d threads, %d sessions, %d events, %d checkpoints",
		time.Since(start), stats.Threads, stats.SessionThreads, stats.Events, stats.Checkpoints)

	if j.events != nil {
		j.events.Publish("cleanup_completed", map[string]interface{}{
			"threads":         stats.Threads,
			"session_threads": stats.SessionThreads,
			"events":          stats.Events,
			"checkpoints":     stats.Checkpoints,
		})
	}

	return stats, nil
}
