package domain

import (
	"strings"
	"time"
)

// Tier enumerates commercial entitlement levels.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// jobTransitions is the allowed state-transition table. Retrying an image
// deliberately reopens a terminal job, so completed/failed both admit
// processing again.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusCompleted:  {JobStatusProcessing, JobStatusCancelled},
	JobStatusFailed:     {JobStatusProcessing, JobStatusCancelled},
	JobStatusCancelled:  {},
}

// CanTransition reports whether a job may move from its current status to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends normal processing.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// GenerationJob is one user-initiated generation request spanning multiple
// prompt-driven image attempts.
type GenerationJob struct {
	ID              string
	UserID          string
	Tier            Tier
	IsWatermarked   bool
	Status          JobStatus
	University      string
	DegreeLevel     string
	PromptsUsed     []string
	TotalImages     int
	CompletedImages int
	FailedImages    int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Attempted reports how many images have reached an outcome.
func (j GenerationJob) Attempted() int {
	return j.CompletedImages + j.FailedImages
}

// Progress returns the completed fraction in [0,1].
func (j GenerationJob) Progress() float64 {
	if j.TotalImages <= 0 {
		return 0
	}
	return float64(j.CompletedImages) / float64(j.TotalImages)
}

// JoinPromptIDs flattens prompt identifiers for persistence.
func JoinPromptIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitPromptIDs parses a persisted prompt identifier list.
func SplitPromptIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
