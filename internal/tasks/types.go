package tasks

import "time"

const MaxTitleLength = 250

// Filter narrows List. Nil fields are not applied; Limit <= 0 means no limit.
type Filter struct {
	Status          *Status
	NeedsEnrichment *bool
	Limit           int
}

type CreateRequest struct {
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Title           *string   `json:"title,omitempty"`
	Status          *Status   `json:"status,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Steps           Steps     `json:"steps,omitempty"`
	ExtraInfo       ExtraInfo `json:"extra_info,omitempty"`
	NeedsEnrichment *bool     `json:"needs_enrichment,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.Title == nil && r.Status == nil && r.Description == nil &&
		r.Steps == nil && r.ExtraInfo == nil && r.NeedsEnrichment == nil
}

// EnrichmentRequest carries the output of the enrichment workflow.
type EnrichmentRequest struct {
	Description *string    `json:"description,omitempty"`
	Steps       Steps      `json:"steps,omitempty"`
	ExtraInfo   ExtraInfo  `json:"extra_info,omitempty"`
	AILastRunAt *time.Time `json:"ai_last_run_at,omitempty"`
}

// NewTask is what the service hands to the store on create.
type NewTask struct {
	Title  string
	Source string
}

// Changes is the normalized column set for an update. NeedsEnrichment is
// always resolved by the service before reaching the store.
type Changes struct {
	Title           *string
	Status          *Status
	Description     *string
	Steps           Steps
	ExtraInfo       ExtraInfo
	NeedsEnrichment *bool
}

// Enrichment is the normalized column set for ApplyEnrichment.
type Enrichment struct {
	Description *string
	Steps       Steps
	ExtraInfo   ExtraInfo
	AILastRunAt time.Time
}
