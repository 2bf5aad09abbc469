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

type interviewQuestionsInput struct {
	JobTitle string `json:"job_title"`
	Company  string `json:"company"`
	Count    int    `json:"count"`
}

// NewInterviewQuestionsTool creates the generate_interview_questions tool
func NewInterviewQuestionsTool(provider services.Provider, profiles services.ProfileStore, events services.EventPublisher) *Tool {
	return &Tool{
		Name:        "generate_interview_questions",
		Description: "Generate practice interview questions for a role, optionally tailored to a company.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"job_title": map[string]interface{}{"type": "string", "description": "Role to prepare for, e.g. 'math teacher'"},
				"company":   map[string]interface{}{"type": "string", "description": "Target company or school, if known"},
				"count":     map[string]interface{}{"type": "integer", "description": "How many questions, default 5"},
			},
			"required": []string{"job_title"},
		},
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			return executeInterviewQuestions(ctx, provider, profiles, events, inv)
		},
	}
}

func executeInterviewQuestions(ctx context.Context, provider services.Provider, profiles services.ProfileStore, events services.EventPublisher, inv Invocation) (string, error) {
	var input interviewQuestionsInput
	if err := json.Unmarshal(inv.Input, &input); err != nil {
		return "", fmt.Errorf("invalid interview input: %w", err)
	}
	if strings.TrimSpace(input.JobTitle) == "" {
		return "Which role would you like to prepare for?", nil
	}

	count := input.Count
	if count <= 0 || count > 15 {
		count = 5
	}

	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Generate %d interview questions for the role of %s", count, input.JobTitle))
	if input.Company != "" {
		prompt.WriteString(" at " + input.Company)
	}
	prompt.WriteString(". Number each question and add a one-line hint on what a strong answer covers.")

	questions, err := provider.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt.String()},
	})
	if err != nil {
		return "", fmt.Errorf("question generation failed: %w", err)
	}

	if inv.UserID != "" {
		if err := profiles.SaveInterviewPrep(ctx, inv.UserID, questions); err != nil {
			log.Printf("🚨 [TOOLS] Failed to record interview prep for %s: %v", inv.UserID, err)
			if events != nil {
				events.Publish("memory_write_failed", map[string]interface{}{
					"user_id": inv.UserID,
					"kind":    "interview_prep",
					"error":   err.Error(),
				})
			}
		}
	}

	return questions, nil
}
