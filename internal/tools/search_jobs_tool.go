package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"careerpilot/internal/models"
	"careerpilot/internal/services"
)

// NoJobsFoundMessage is the canned observation for searches with no hits.
const NoJobsFoundMessage = "No jobs found matching your search. You could try a broader location or a different category."

type searchJobsInput struct {
	Query    string   `json:"query"`
	Location string   `json:"location"`
	Category string   `json:"category"`
	Subject  string   `json:"subject"` // alias the model sometimes uses for category
	Tags     []string `json:"tags"`
}

// NewSearchJobsTool creates the search_jobs tool
func NewSearchJobsTool(jobs services.JobRepository, profiles services.ProfileStore, events services.EventPublisher) *Tool {
	return &Tool{
		Name:        "search_jobs",
		Description: "Search the job board for open positions. Filters combine: only jobs matching every given filter are returned.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":    map[string]interface{}{"type": "string", "description": "Free-text query, e.g. 'math teacher'"},
				"location": map[string]interface{}{"type": "string", "description": "City or region, e.g. 'Guwahati'"},
				"category": map[string]interface{}{"type": "string", "description": "Job category, e.g. 'teaching'"},
				"subject":  map[string]interface{}{"type": "string", "description": "Subject area for teaching roles, e.g. 'math'"},
				"tags":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			return executeSearchJobs(ctx, jobs, profiles, events, inv)
		},
	}
}

func executeSearchJobs(ctx context.Context, jobs services.JobRepository, profiles services.ProfileStore, events services.EventPublisher, inv Invocation) (string, error) {
	var input searchJobsInput
	if err := json.Unmarshal(inv.Input, &input); err != nil {
		return "", fmt.Errorf("invalid search input: %w", err)
	}

	category := input.Category
	if category == "" {
		category = input.Subject
	}

	results, err := jobs.Query(ctx, models.JobFilter{
		Location: input.Location,
		Category: category,
		Tags:     input.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("job query failed: %w", err)
	}

	// Record the search in long-term memory. A failed write must not eat
	// the search results; it logs as an operational alert instead.
	if inv.UserID != "" {
		refs := make([]string, 0, len(results))
		for _, job := range results {
			refs = append(refs, strconv.FormatInt(job.ID, 10))
		}
		query := strings.TrimSpace(strings.Join([]string{input.Query, category}, " "))
		if err := profiles.SaveSearchHistory(ctx, inv.UserID, query, input.Location, refs); err != nil {
			log.Printf("🚨 [TOOLS] Failed to record search for %s: %v", inv.UserID, err)
			if events != nil {
				events.Publish("memory_write_failed", map[string]interface{}{
					"user_id": inv.UserID,
					"kind":    "search_history",
					"error":   err.Error(),
				})
			}
		}
	}

	if len(results) == 0 {
		return NoJobsFoundMessage, nil
	}

	return formatJobResults(results), nil
}

func formatJobResults(jobs []models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d matching job(s):\n", len(jobs)))
	for i, job := range jobs {
		sb.WriteString(fmt.Sprintf("%d. %s at %s", i+1, job.Title, job.Company))
		if job.Location != "" {
			sb.WriteString(" (" + job.Location + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
