package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
)

// ProfileStore is the long-term memory surface used by the tools and the
// context builder.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveUserPreferences(ctx context.Context, userID string, prefs map[string]string) error
	SaveResumeAnalysis(ctx context.Context, userID, analysis string, score float64) error
	SaveSearchHistory(ctx context.Context, userID, query, location string, resultRefs []string) error
	SaveInterviewPrep(ctx context.Context, userID, prep string) error
	GetImportantEvents(ctx context.Context, userID string, minImportance float64, limit int) ([]models.MemoryEvent, error)
}

// casRetries bounds the optimistic-concurrency loop on capped histories.
const casRetries = 3

// ProfileMemoryService persists user profiles and their memory events.
type ProfileMemoryService struct {
	db  *database.MongoDB
	now func() time.Time
}

// NewProfileMemoryService creates a new profile memory service
func NewProfileMemoryService(db *database.MongoDB) *ProfileMemoryService {
	return &ProfileMemoryService{db: db, now: time.Now}
}

// GetUserProfile returns the profile or nil when the user has none yet.
func (s *ProfileMemoryService) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.Collection(database.CollectionUserProfiles).
		FindOne(ctx, bson.M{"userId": userID}).
		Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load profile %s: %w", userID, err)
	}
	return &profile, nil
}

// SaveUserPreferences merges the given preference keys into the profile,
// creating it if needed. Keys not mentioned are left untouched.
func (s *ProfileMemoryService) SaveUserPreferences(ctx context.Context, userID string, prefs map[string]string) error {
	set := bson.M{"lastActive": s.now()}
	for k, v := range prefs {
		set["preferences."+k] = v
	}

	_, err := s.db.Collection(database.CollectionUserProfiles).UpdateOne(
		ctx,
		bson.M{"userId": userID},
		bson.M{
			"$set":         set,
			"$inc":         bson.M{"version": 1},
			"$setOnInsert": bson.M{"userId": userID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences for %s: %w", userID, err)
	}
	return nil
}

// resumeImportance maps a 0-100 resume score to a 0.0-1.0 importance.
// Missing or non-positive scores fall back to the 0.5 neutral default.
func resumeImportance(score float64) float64 {
	if score <= 0 {
		return 0.5
	}
	importance := score / 100.0
	if importance > 1.0 {
		return 1.0
	}
	return importance
}

// jobSearchImportance rates searches by whether they found anything.
func jobSearchImportance(hasResults bool) float64 {
	if hasResults {
		return 0.7
	}
	return 0.3
}

// interviewPrepImportance is fixed; prep sessions are moderately notable.
const interviewPrepImportance = 0.6

// appendResumeAnalysis appends to the capped history, evicting oldest-first.
func appendResumeAnalysis(p *models.UserProfile, e models.ResumeAnalysisEntry) {
	p.ResumeAnalyses = append(p.ResumeAnalyses, e)
	if len(p.ResumeAnalyses) > models.MaxResumeAnalyses {
		p.ResumeAnalyses = p.ResumeAnalyses[len(p.ResumeAnalyses)-models.MaxResumeAnalyses:]
	}
}

func appendSearchHistory(p *models.UserProfile, e models.SearchHistoryEntry) {
	p.SearchHistory = append(p.SearchHistory, e)
	if len(p.SearchHistory) > models.MaxSearchHistory {
		p.SearchHistory = p.SearchHistory[len(p.SearchHistory)-models.MaxSearchHistory:]
	}
}

func appendInterviewPrep(p *models.UserProfile, e models.InterviewPrepEntry) {
	p.InterviewHistory = append(p.InterviewHistory, e)
	if len(p.InterviewHistory) > models.MaxInterviewHistory {
		p.InterviewHistory = p.InterviewHistory[len(p.InterviewHistory)-models.MaxInterviewHistory:]
	}
}

// SaveResumeAnalysis appends a scored analysis to the profile history
// (capped, oldest evicted) and records a resume_analysis event.
func (s *ProfileMemoryService) SaveResumeAnalysis(ctx context.Context, userID, analysis string, score float64) error {
	entry := models.ResumeAnalysisEntry{
		Timestamp: s.now(),
		Analysis:  analysis,
		Score:     score,
	}

	err := s.appendWithCAS(ctx, userID, func(p *models.UserProfile) {
		appendResumeAnalysis(p, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to save resume analysis for %s: %w", userID, err)
	}

	s.recordEvent(ctx, models.MemoryEvent{
		UserID:    userID,
		EventType: models.EventResumeAnalysis,
		EventData: map[string]string{
			"score": strconv.FormatFloat(score, 'f', 1, 64),
		},
		ImportanceScore: resumeImportance(score),
	})
	return nil
}

// SaveSearchHistory appends a search record (capped) and records a
// job_search event rated by whether the search returned anything.
func (s *ProfileMemoryService) SaveSearchHistory(ctx context.Context, userID, query, location string, resultRefs []string) error {
	entry := models.SearchHistoryEntry{
		Timestamp:  s.now(),
		Query:      query,
		Location:   location,
		ResultRefs: resultRefs,
	}

	err := s.appendWithCAS(ctx, userID, func(p *models.UserProfile) {
		appendSearchHistory(p, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to save search history for %s: %w", userID, err)
	}

	s.recordEvent(ctx, models.MemoryEvent{
		UserID:    userID,
		EventType: models.EventJobSearch,
		EventData: map[string]string{
			"query":    query,
			"location": location,
			"results":  strconv.Itoa(len(resultRefs)),
		},
		ImportanceScore: jobSearchImportance(len(resultRefs) > 0),
	})
	return nil
}

// SaveInterviewPrep appends an interview preparation (capped) and records
// an interview_prep event.
func (s *ProfileMemoryService) SaveInterviewPrep(ctx context.Context, userID, prep string) error {
	entry := models.InterviewPrepEntry{
		Timestamp: s.now(),
		Prep:      prep,
	}

	err := s.appendWithCAS(ctx, userID, func(p *models.UserProfile) {
		appendInterviewPrep(p, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to save interview prep for %s: %w", userID, err)
	}

	s.recordEvent(ctx, models.MemoryEvent{
		UserID:          userID,
		EventType:       models.EventInterviewPrep,
		EventData:       map[string]string{},
		ImportanceScore: interviewPrepImportance,
	})
	return nil
}

// appendWithCAS runs a read-modify-write on the profile's capped arrays
// under an optimistic version check. Concurrent writers retry a few times;
// losing an entry is worse than a second round trip.
func (s *ProfileMemoryService) appendWithCAS(ctx context.Context, userID string, mutate func(*models.UserProfile)) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		profile, err := s.GetUserProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = &models.UserProfile{UserID: userID}
		}

		mutate(profile)

		now := s.now()
		res, err := s.db.Collection(database.CollectionUserProfiles).UpdateOne(
			ctx,
			bson.M{"userId": userID, "version": profile.Version},
			bson.M{
				"$set": bson.M{
					"resumeAnalyses":   profile.ResumeAnalyses,
					"searchHistory":    profile.SearchHistory,
					"interviewHistory": profile.InterviewHistory,
					"lastActive":       now,
				},
				"$inc":         bson.M{"version": 1},
				"$setOnInsert": bson.M{"userId": userID},
			},
			options.Update().SetUpsert(profile.Version == 0),
		)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return err
		}
		if res.MatchedCount > 0 || res.UpsertedCount > 0 {
			return nil
		}
		log.Printf("🔁 [MEMORY] Version conflict on profile %s, retrying (%d)", userID, attempt+1)
	}
	return fmt.Errorf("profile %s: too many concurrent updates", userID)
}

// recordEvent inserts a memory event. Event writes ride along with profile
// writes and must not fail the user-facing operation; failures are logged
// as operational alerts.
func (s *ProfileMemoryService) recordEvent(ctx context.Context, event models.MemoryEvent) {
	event.CreatedAt = s.now()
	event.AccessCount = 0

	_, err := s.db.Collection(database.CollectionMemoryEvents).InsertOne(ctx, event)
	if err != nil {
		log.Printf("🚨 [MEMORY] Failed to record %s event for %s: %v", event.EventType, event.UserID, err)
	}
}

// GetImportantEvents returns up to limit events at or above minImportance,
// most important first, and bumps their access counters.
func (s *ProfileMemoryService) GetImportantEvents(ctx context.Context, userID string, minImportance float64, limit int) ([]models.MemoryEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "importanceScore", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(database.CollectionMemoryEvents).Find(
		ctx,
		bson.M{"userId": userID, "importanceScore": bson.M{"$gte": minImportance}},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var events []models.MemoryEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events for %s: %w", userID, err)
	}

	if len(events) > 0 {
		ids := make([]interface{}, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		now := s.now()
		_, err = s.db.Collection(database.CollectionMemoryEvents).UpdateMany(
			ctx,
			bson.M{"_id": bson.M{"$in": ids}},
			bson.M{
				"$inc": bson.M{"accessCount": 1},
				"$set": bson.M{"lastAccessed": now},
			},
		)
		if err != nil {
			log.Printf("⚠️ [MEMORY] Failed to bump access counters for %s: %v", userID, err)
		}
	}

	return events, nil
}
