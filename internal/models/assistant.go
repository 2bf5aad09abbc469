package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message roles used in thread memory and provider calls
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a single message in a conversation thread.
// Name is set for tool observations so the model can tell them apart.
type ChatMessage struct {
	Role    string `bson:"role" json:"role"`
	Content string `bson:"content" json:"content"`
	Name    string `bson:"name,omitempty" json:"name,omitempty"`
}

// ThreadMemory holds the short-term state of one conversation thread.
// A thread past ExpiresAt is logically absent — reads must treat it as
// not-found even while the record is still physically present.
type ThreadMemory struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID  string             `bson:"threadId" json:"thread_id"`
	UserID    string             `bson:"userId,omitempty" json:"user_id,omitempty"` // empty for anonymous threads
	Messages  []ChatMessage      `bson:"messages" json:"messages"`
	Metadata  map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	LastAgent string             `bson:"lastAgent,omitempty" json:"last_agent,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expires_at"`
}

// Expired reports whether the thread is logically absent at the given time.
func (t *ThreadMemory) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ThreadTTL is the sliding expiry window: every save pushes ExpiresAt
// to now + ThreadTTL.
const ThreadTTL = 24 * time.Hour

// SessionThread maps an external session id to its conversation thread.
// Persisted with the same TTL discipline as the thread itself so the
// mapping survives process restarts and multi-instance deployments.
type SessionThread struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"sessionId" json:"session_id"`
	ThreadID  string             `bson:"threadId" json:"thread_id"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expires_at"`
}

// ResumeAnalysisEntry is one scored resume analysis in a user profile.
type ResumeAnalysisEntry struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Analysis  string    `bson:"analysis" json:"analysis"`
	Score     float64   `bson:"score" json:"score"`
}

// SearchHistoryEntry is one recorded job search in a user profile.
type SearchHistoryEntry struct {
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Query      string    `bson:"query" json:"query"`
	Location   string    `bson:"location,omitempty" json:"location,omitempty"`
	ResultRefs []string  `bson:"resultRefs,omitempty" json:"result_refs,omitempty"`
}

// InterviewPrepEntry is one interview preparation in a user profile.
type InterviewPrepEntry struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Prep      string    `bson:"prep" json:"prep"`
}

// Profile history caps. Entries are evicted oldest-first on overflow.
const (
	MaxResumeAnalyses   = 10
	MaxSearchHistory    = 20
	MaxInterviewHistory = 10
)

// UserProfile is the long-term memory for one user.
// Version backs the optimistic-concurrency check on the capped histories.
type UserProfile struct {
	ID               primitive.ObjectID    `bson:"_id,omitempty" json:"id"`
	UserID           string                `bson:"userId" json:"user_id"`
	Preferences      map[string]string     `bson:"preferences,omitempty" json:"preferences,omitempty"`
	ResumeAnalyses   []ResumeAnalysisEntry `bson:"resumeAnalyses,omitempty" json:"resume_analyses,omitempty"`
	SearchHistory    []SearchHistoryEntry  `bson:"searchHistory,omitempty" json:"search_history,omitempty"`
	InterviewHistory []InterviewPrepEntry  `bson:"interviewHistory,omitempty" json:"interview_history,omitempty"`
	LastActive       time.Time             `bson:"lastActive" json:"last_active"`
	Version          int64                 `bson:"version" json:"version"`
}

// LatestResumeAnalysis returns the most recent resume analysis, or nil.
func (p *UserProfile) LatestResumeAnalysis() *ResumeAnalysisEntry {
	if len(p.ResumeAnalyses) == 0 {
		return nil
	}
	return &p.ResumeAnalyses[len(p.ResumeAnalyses)-1]
}

// MemoryEvent types
const (
	EventResumeAnalysis = "resume_analysis"
	EventJobSearch      = "job_search"
	EventInterviewPrep  = "interview_prep"
)

// MemoryEvent is an immutable, importance-scored record of a notable user
// action. Importance is assigned at write time and only changes through the
// cleanup policy; AccessCount/LastAccessed track usage in context assembly.
type MemoryEvent struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          string             `bson:"userId" json:"user_id"`
	EventType       string             `bson:"eventType" json:"event_type"`
	EventData       map[string]string  `bson:"eventData,omitempty" json:"event_data,omitempty"`
	ImportanceScore float64            `bson:"importanceScore" json:"importance_score"` // 0.0–1.0
	AccessCount     int64              `bson:"accessCount" json:"access_count"`
	LastAccessed    *time.Time         `bson:"lastAccessed,omitempty" json:"last_accessed,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"created_at"`
}

// Checkpoint is a recovery snapshot of in-progress orchestration state.
// Append-only; never read on the normal path.
type Checkpoint struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID   string             `bson:"threadId" json:"thread_id"`
	AgentName  string             `bson:"agentName" json:"agent_name"`
	StepNumber int                `bson:"stepNumber" json:"step_number"`
	Data       map[string]string  `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// TaskResult is a write-only audit record of one tool execution.
type TaskResult struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID   string             `bson:"threadId" json:"thread_id"`
	AgentName  string             `bson:"agentName" json:"agent_name"`
	Task       string             `bson:"task" json:"task"`
	Result     string             `bson:"result" json:"result"`
	Confidence float64            `bson:"confidence" json:"confidence"`
	Metadata   map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Document is extracted plain text for a user's uploaded document.
// Upload handling and format parsing happen outside the engine; the
// engine only reads the extracted text back.
type Document struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userId" json:"user_id"`
	DocumentID string             `bson:"documentId" json:"document_id"`
	Kind       string             `bson:"kind,omitempty" json:"kind,omitempty"` // e.g. "resume"
	Text       string             `bson:"text" json:"-"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Retention windows for the cleanup job.
const (
	EventRetentionAge        = 30 * 24 * time.Hour
	EventRetentionImportance = 0.3
	EventRetentionAccesses   = 5
	CheckpointRetentionAge   = 7 * 24 * time.Hour
)
