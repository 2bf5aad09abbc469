package models

import "time"

// Job is one listing in the portal's jobs table.
type Job struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Category    string    `json:"category"` // e.g. "teaching", "engineering"
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
}

// JobFilter selects listings. All fields are optional and combine with
// AND semantics; an empty filter matches everything.
type JobFilter struct {
	Location string
	Category string
	Tags     []string
	Limit    int
}
