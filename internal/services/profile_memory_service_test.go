package services

import (
	"fmt"
	"math"
	"testing"
	"time"

	"careerpilot/internal/models"
)

// TestResumeImportance tests the score-to-importance mapping
func TestResumeImportance(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected float64
	}{
		{name: "Typical score", score: 85, expected: 0.85},
		{name: "Perfect score", score: 100, expected: 1.0},
		{name: "Out-of-range high clamps to 1.0", score: 150, expected: 1.0},
		{name: "Negative falls back to default", score: -10, expected: 0.5},
		{name: "Missing score (zero) falls back to default", score: 0, expected: 0.5},
		{name: "Low but valid score", score: 20, expected: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resumeImportance(tt.score)
			if math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("Expected importance %.2f, got %.2f", tt.expected, got)
			}
			if got < 0 {
				t.Errorf("Importance must never be negative, got %.2f", got)
			}
		})
	}
}

// TestJobSearchImportance tests the result-based importance rule
func TestJobSearchImportance(t *testing.T) {
	if got := jobSearchImportance(true); got != 0.7 {
		t.Errorf("Expected 0.7 for searches with results, got %.2f", got)
	}
	if got := jobSearchImportance(false); got != 0.3 {
		t.Errorf("Expected 0.3 for empty searches, got %.2f", got)
	}
}

// TestAppendResumeAnalysisCapping tests FIFO eviction at the cap
func TestAppendResumeAnalysisCapping(t *testing.T) {
	profile := &models.UserProfile{UserID: "user-1"}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < models.MaxResumeAnalyses+1; i++ {
		appendResumeAnalysis(profile, models.ResumeAnalysisEntry{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Analysis:  fmt.Sprintf("analysis-%d", i),
			Score:     float64(50 + i),
		})
	}

	if len(profile.ResumeAnalyses) != models.MaxResumeAnalyses {
		t.Fatalf("Expected exactly %d entries after overflow, got %d", models.MaxResumeAnalyses, len(profile.ResumeAnalyses))
	}
	if profile.ResumeAnalyses[0].Analysis != "analysis-1" {
		t.Errorf("Expected oldest entry evicted, first is %q", profile.ResumeAnalyses[0].Analysis)
	}
	last := profile.ResumeAnalyses[len(profile.ResumeAnalyses)-1]
	if last.Analysis != fmt.Sprintf("analysis-%d", models.MaxResumeAnalyses) {
		t.Errorf("Expected newest entry retained, last is %q", last.Analysis)
	}
}

// TestAppendSearchHistoryCapping tests the search history bound
func TestAppendSearchHistoryCapping(t *testing.T) {
	profile := &models.UserProfile{UserID: "user-1"}

	for i := 0; i < models.MaxSearchHistory*2; i++ {
		appendSearchHistory(profile, models.SearchHistoryEntry{
			Query: fmt.Sprintf("query-%d", i),
		})
	}

	if len(profile.SearchHistory) != models.MaxSearchHistory {
		t.Fatalf("Expected %d entries, got %d", models.MaxSearchHistory, len(profile.SearchHistory))
	}
	if profile.SearchHistory[0].Query != fmt.Sprintf("query-%d", models.MaxSearchHistory) {
		t.Errorf("Unexpected oldest retained entry: %q", profile.SearchHistory[0].Query)
	}
}

// TestAppendInterviewPrepCapping tests the interview history bound
func TestAppendInterviewPrepCapping(t *testing.T) {
	profile := &models.UserProfile{UserID: "user-1"}

	for i := 0; i < models.MaxInterviewHistory+5; i++ {
		appendInterviewPrep(profile, models.InterviewPrepEntry{
			Prep: fmt.Sprintf("prep-%d", i),
		})
	}

	if len(profile.InterviewHistory) != models.MaxInterviewHistory {
		t.Fatalf("Expected %d entries, got %d", models.MaxInterviewHistory, len(profile.InterviewHistory))
	}
	if profile.InterviewHistory[0].Prep != "prep-5" {
		t.Errorf("Expected oldest entries evicted, first is %q", profile.InterviewHistory[0].Prep)
	}
}

// TestLatestResumeAnalysis tests the newest-entry helper
func TestLatestResumeAnalysis(t *testing.T) {
	profile := &models.UserProfile{}
	if profile.LatestResumeAnalysis() != nil {
		t.Error("Expected nil for empty history")
	}

	appendResumeAnalysis(profile, models.ResumeAnalysisEntry{Analysis: "first", Score: 60})
	appendResumeAnalysis(profile, models.ResumeAnalysisEntry{Analysis: "second", Score: 75})

	latest := profile.LatestResumeAnalysis()
	if latest == nil || latest.Analysis != "second" {
		t.Errorf("Expected latest analysis 'second', got %+v", latest)
	}
}
