package services

import (
	"context"
	"fmt"
	"strings"

	"careerpilot/internal/database"
	"careerpilot/internal/models"
)

// JobRepository looks up job listings for the search tool.
type JobRepository interface {
	Query(ctx context.Context, filter models.JobFilter) ([]models.Job, error)
}

// JobService reads listings from the portal's SQL database.
type JobService struct {
	db *database.DB
}

// NewJobService creates a new job service
func NewJobService(db *database.DB) *JobService {
	return &JobService{db: db}
}

const defaultJobLimit = 20

// Query returns listings matching the filter. Empty filter fields are
// ignored; present fields combine with AND. Location and category match
// case-insensitively; every requested tag must be present.
func (s *JobService) Query(ctx context.Context, filter models.JobFilter) ([]models.Job, error) {
	query := `SELECT id, title, company, location, category, tags, description, posted_at FROM jobs`
	var conditions []string
	var args []interface{}

	if filter.Location != "" {
		conditions = append(conditions, "LOWER(location) = LOWER(?)")
		args = append(args, filter.Location)
	}
	if filter.Category != "" {
		conditions = append(conditions, "LOWER(category) = LOWER(?)")
		args = append(args, filter.Category)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY posted_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}
	// Tag matching happens in Go (the tags column is a comma-separated
	// list and string concatenation differs between sqlite and MySQL),
	// so the SQL limit can only apply when no tag filter narrows further.
	if len(filter.Tags) == 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var tags string
		if err := rows.Scan(&job.ID, &job.Title, &job.Company, &job.Location, &job.Category, &tags, &job.Description, &job.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		if tags != "" {
			job.Tags = strings.Split(tags, ",")
		}
		if !hasAllTags(job.Tags, filter.Tags) {
			continue
		}
		jobs = append(jobs, job)
		if len(jobs) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}

	return jobs, nil
}

// hasAllTags reports whether every wanted tag is present, ignoring case.
func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(w)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
