package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"careerpilot/internal/models"
)

type fakeProfileStore struct {
	profile *models.UserProfile
	events  []models.MemoryEvent
}

func (f *fakeProfileStore) GetUserProfile(_ context.Context, _ string) (*models.UserProfile, error) {
	return f.profile, nil
}

func (f *fakeProfileStore) SaveUserPreferences(_ context.Context, _ string, _ map[string]string) error {
	return nil
}

func (f *fakeProfileStore) SaveResumeAnalysis(_ context.Context, _ string, _ string, _ float64) error {
	return nil
}

func (f *fakeProfileStore) SaveSearchHistory(_ context.Context, _ string, _ string, _ string, _ []string) error {
	return nil
}

func (f *fakeProfileStore) SaveInterviewPrep(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *fakeProfileStore) GetImportantEvents(_ context.Context, _ string, minImportance float64, limit int) ([]models.MemoryEvent, error) {
	var out []models.MemoryEvent
	for _, e := range f.events {
		if e.ImportanceScore >= minImportance && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// TestBuildUserContextNoProfile tests that absence means no
// personalization, not an error
func TestBuildUserContextNoProfile(t *testing.T) {
	b := NewContextBuilder(&fakeProfileStore{})
	if got := b.BuildUserContext(context.Background(), "stranger"); got != "" {
		t.Errorf("Expected empty context for unknown user, got %q", got)
	}
	if got := b.BuildUserContext(context.Background(), ""); got != "" {
		t.Errorf("Expected empty context for anonymous user, got %q", got)
	}
}

// TestRenderUserContextOrdering tests section content and priority order
func TestRenderUserContextOrdering(t *testing.T) {
	now := time.Now()
	profile := &models.UserProfile{
		UserID:      "u-1",
		Preferences: map[string]string{"remote": "preferred"},
		ResumeAnalyses: []models.ResumeAnalysisEntry{
			{Timestamp: now.Add(-48 * time.Hour), Analysis: "old", Score: 50},
			{Timestamp: now, Analysis: "new", Score: 82},
		},
		SearchHistory: []models.SearchHistoryEntry{
			{Location: "Mumbai"},
			{Location: "guwahati"}, // duplicate of the later entry, different case
			{Location: "Guwahati"},
			{Location: "Delhi"},
		},
	}
	events := []models.MemoryEvent{
		{EventType: models.EventResumeAnalysis, EventData: map[string]string{"score": "82"}, ImportanceScore: 0.82, CreatedAt: now},
	}

	rendered := renderUserContext(profile, events)

	if !strings.Contains(rendered, "82/100") {
		t.Errorf("Expected the latest resume score, got:\n%s", rendered)
	}
	if strings.Contains(rendered, "50/100") {
		t.Errorf("Only the latest resume score should appear, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Delhi") || !strings.Contains(rendered, "Guwahati") || !strings.Contains(rendered, "Mumbai") {
		t.Errorf("Expected all three distinct locations, got:\n%s", rendered)
	}
	if !strings.Contains(rendered, "remote: preferred") {
		t.Errorf("Expected preferences rendered, got:\n%s", rendered)
	}

	scoreIdx := strings.Index(rendered, "82/100")
	locIdx := strings.Index(rendered, "Delhi")
	prefIdx := strings.Index(rendered, "remote: preferred")
	if !(scoreIdx < locIdx && locIdx < prefIdx) {
		t.Errorf("Sections out of order: score@%d locations@%d prefs@%d", scoreIdx, locIdx, prefIdx)
	}
}

// TestRecentSearchLocations tests distinct-location selection, newest first
func TestRecentSearchLocations(t *testing.T) {
	history := []models.SearchHistoryEntry{
		{Location: "Pune"},
		{Location: "Delhi"},
		{Location: ""},
		{Location: "Mumbai"},
		{Location: "delhi"},
		{Location: "Guwahati"},
	}

	got := recentSearchLocations(history, 3)
	want := []string{"Guwahati", "delhi", "Mumbai"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// TestBuildUserContextCaching tests the short-lived cache and invalidation
func TestBuildUserContextCaching(t *testing.T) {
	store := &fakeProfileStore{
		profile: &models.UserProfile{UserID: "u-1", Preferences: map[string]string{"city": "Pune"}},
	}
	b := NewContextBuilder(store)

	first := b.BuildUserContext(context.Background(), "u-1")
	store.profile.Preferences["city"] = "Delhi"

	if got := b.BuildUserContext(context.Background(), "u-1"); got != first {
		t.Error("Expected the cached context before invalidation")
	}

	b.Invalidate("u-1")
	if got := b.BuildUserContext(context.Background(), "u-1"); !strings.Contains(got, "Delhi") {
		t.Errorf("Expected fresh context after invalidation, got %q", got)
	}
}
