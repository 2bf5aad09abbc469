package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"careerpilot/internal/models"
)

// Context assembly limits
const (
	contextMaxLocations = 3
	contextMaxEvents    = 5
	contextMinImportant = 0.7
	contextCacheTTL     = 5 * time.Minute
)

// ContextBuilder assembles the personalization block injected into the
// agent prompt. Assembled contexts are cached briefly per user; writers
// call Invalidate after changing a profile.
type ContextBuilder struct {
	profiles ProfileStore
	cache    *gocache.Cache
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(profiles ProfileStore) *ContextBuilder {
	return &ContextBuilder{
		profiles: profiles,
		cache:    gocache.New(contextCacheTTL, 10*time.Minute),
	}
}

// BuildUserContext returns the rendered context for the user, or the empty
// string when the user has no profile. Context is best-effort: if memory
// reads fail the turn proceeds without personalization.
func (b *ContextBuilder) BuildUserContext(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}

	if cached, found := b.cache.Get(userID); found {
		return cached.(string)
	}

	profile, err := b.profiles.GetUserProfile(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [CONTEXT] Failed to load profile %s: %v", userID, err)
		return ""
	}
	if profile == nil {
		return ""
	}

	events, err := b.profiles.GetImportantEvents(ctx, userID, contextMinImportant, contextMaxEvents)
	if err != nil {
		log.Printf("⚠️ [CONTEXT] Failed to load events for %s: %v", userID, err)
		events = nil
	}

	rendered := renderUserContext(profile, events)
	b.cache.Set(userID, rendered, gocache.DefaultExpiration)
	return rendered
}

// Invalidate drops the cached context for a user after a profile write.
func (b *ContextBuilder) Invalidate(userID string) {
	b.cache.Delete(userID)
}

// renderUserContext renders the personalization block in a fixed order:
// latest resume score, recent distinct search locations, notable events,
// then stored preferences.
func renderUserContext(profile *models.UserProfile, events []models.MemoryEvent) string {
	var sb strings.Builder

	sb.WriteString("## What we know about this user\n")

	if latest := profile.LatestResumeAnalysis(); latest != nil {
		sb.WriteString(fmt.Sprintf("- Latest resume score: %.0f/100\n", latest.Score))
	}

	if locations := recentSearchLocations(profile.SearchHistory, contextMaxLocations); len(locations) > 0 {
		sb.WriteString("- Recently searched locations: " + strings.Join(locations, ", ") + "\n")
	}

	if len(events) > 0 {
		sb.WriteString("\n## Notable activity\n")
		for _, e := range events {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", describeEvent(e), e.CreatedAt.Format("2006-01-02")))
		}
	}

	if len(profile.Preferences) > 0 {
		sb.WriteString("\n## Stated preferences\n")
		keys := make([]string, 0, len(profile.Preferences))
		for k := range profile.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, profile.Preferences[k]))
		}
	}

	return sb.String()
}

// recentSearchLocations returns up to max distinct locations from the
// history, newest first.
func recentSearchLocations(history []models.SearchHistoryEntry, max int) []string {
	seen := make(map[string]bool)
	var locations []string
	for i := len(history) - 1; i >= 0 && len(locations) < max; i-- {
		loc := strings.TrimSpace(history[i].Location)
		if loc == "" || seen[strings.ToLower(loc)] {
			continue
		}
		seen[strings.ToLower(loc)] = true
		locations = append(locations, loc)
	}
	return locations
}

func describeEvent(e models.MemoryEvent) string {
	switch e.EventType {
	case models.EventResumeAnalysis:
		if score, ok := e.EventData["score"]; ok {
			return "Resume analyzed, scored " + score
		}
		return "Resume analyzed"
	case models.EventJobSearch:
		desc := "Searched jobs"
		if q := e.EventData["query"]; q != "" {
			desc += " for " + q
		}
		if loc := e.EventData["location"]; loc != "" {
			desc += " in " + loc
		}
		return desc
	case models.EventInterviewPrep:
		return "Prepared interview questions"
	default:
		return e.EventType
	}
}
