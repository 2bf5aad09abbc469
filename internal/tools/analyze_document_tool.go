package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"careerpilot/internal/models"
	"careerpilot/internal/services"
)

type analyzeDocumentInput struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"` // inline text when no stored document is referenced
}

type resumeAnalysisResult struct {
	Analysis string  `json:"analysis"`
	Score    float64 `json:"score"`
}

const resumeAnalysisPrompt = `You are a resume reviewer for a job portal. Analyze the resume below.
Respond with JSON only: {"analysis": "<3-5 sentence assessment with concrete improvement suggestions>", "score": <0-100 overall quality score>}

Resume:
`

// NewAnalyzeDocumentTool creates the analyze_document tool
func NewAnalyzeDocumentTool(provider services.Provider, documents services.DocumentStore, profiles services.ProfileStore, events services.EventPublisher) *Tool {
	return &Tool{
		Name:        "analyze_document",
		Description: "Analyze a user's resume and produce an assessment with a 0-100 score. Pass document_id for an uploaded resume, or text for inline content.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"document_id": map[string]interface{}{"type": "string", "description": "Identifier of an uploaded document"},
				"text":        map[string]interface{}{"type": "string", "description": "Raw resume text, when no document was uploaded"},
			},
		},
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			return executeAnalyzeDocument(ctx, provider, documents, profiles, events, inv)
		},
	}
}

func executeAnalyzeDocument(ctx context.Context, provider services.Provider, documents services.DocumentStore, profiles services.ProfileStore, events services.EventPublisher, inv Invocation) (string, error) {
	var input analyzeDocumentInput
	if err := json.Unmarshal(inv.Input, &input); err != nil {
		return "", fmt.Errorf("invalid analyze input: %w", err)
	}

	text := strings.TrimSpace(input.Text)
	if text == "" && input.DocumentID != "" {
		doc, err := documents.GetDocument(ctx, inv.UserID, input.DocumentID)
		if err != nil {
			return "", fmt.Errorf("failed to load document %s: %w", input.DocumentID, err)
		}
		if doc == nil {
			return "I couldn't find that document. Please upload your resume again.", nil
		}
		text = doc.Text
	}
	if text == "" {
		return "I need a resume to analyze. Please upload one or paste its text.", nil
	}

	raw, err := provider.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: resumeAnalysisPrompt + text},
	})
	if err != nil {
		return "", fmt.Errorf("analysis completion failed: %w", err)
	}

	result := parseResumeAnalysis(raw)

	if inv.UserID != "" {
		if err := profiles.SaveResumeAnalysis(ctx, inv.UserID, result.Analysis, result.Score); err != nil {
			log.Printf("🚨 [TOOLS] Failed to record resume analysis for %s: %v", inv.UserID, err)
			if events != nil {
				events.Publish("memory_write_failed", map[string]interface{}{
					"user_id": inv.UserID,
					"kind":    "resume_analysis",
					"error":   err.Error(),
				})
			}
		}
	}

	if result.Score > 0 {
		return fmt.Sprintf("Resume score: %.0f/100\n\n%s", result.Score, result.Analysis), nil
	}
	return result.Analysis, nil
}

// parseResumeAnalysis tolerates models that wrap JSON in prose or fences.
// When no parseable JSON is present the whole reply becomes the analysis
// with no score, which downstream treats as the neutral default.
func parseResumeAnalysis(raw string) resumeAnalysisResult {
	var result resumeAnalysisResult
	if jsonStr := services.ExtractJSON(raw); jsonStr != "" {
		if err := json.Unmarshal([]byte(jsonStr), &result); err == nil && result.Analysis != "" {
			return result
		}
	}
	return resumeAnalysisResult{Analysis: strings.TrimSpace(raw)}
}
