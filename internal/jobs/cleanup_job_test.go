package jobs

import (
	"testing"
	"time"

	"careerpilot/internal/models"
)

// TestEventEligibleForDeletion tests that eviction requires age,
// low importance, and low access count jointly
func TestEventEligibleForDeletion(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		event    models.MemoryEvent
		eligible bool
	}{
		{
			name:     "Old, unimportant, rarely accessed",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -40), ImportanceScore: 0.2, AccessCount: 1},
			eligible: true,
		},
		{
			name:     "Old and unimportant but frequently accessed",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -40), ImportanceScore: 0.2, AccessCount: 10},
			eligible: false,
		},
		{
			name:     "Unimportant and never accessed but recent",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -10), ImportanceScore: 0.1, AccessCount: 0},
			eligible: false,
		},
		{
			name:     "Old and rarely accessed but important",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -40), ImportanceScore: 0.8, AccessCount: 0},
			eligible: false,
		},
		{
			name:     "Importance exactly at the threshold survives",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -40), ImportanceScore: 0.3, AccessCount: 0},
			eligible: false,
		},
		{
			name:     "Access count exactly at the threshold survives",
			event:    models.MemoryEvent{CreatedAt: now.AddDate(0, 0, -40), ImportanceScore: 0.1, AccessCount: 5},
			eligible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventEligibleForDeletion(tt.event, now); got != tt.eligible {
				t.Errorf("eligible = %v, want %v", got, tt.eligible)
			}
		})
	}
}

// TestCleanupStatsTotal tests stat summation
func TestCleanupStatsTotal(t *testing.T) {
	stats := CleanupStats{Threads: 3, SessionThreads: 2, Events: 5, Checkpoints: 7}
	if got := stats.Total(); got != 17 {
		t.Errorf("Expected total 17, got %d", got)
	}
}
