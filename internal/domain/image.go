package domain

import "time"

// ImageOutcome is the tri-state result of a generation attempt. Pending means
// the image has never been attempted; it is distinct from Failed.
type ImageOutcome int

const (
	OutcomePending ImageOutcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// String implements fmt.Stringer for log fields.
func (o ImageOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// NullableBool maps the outcome onto the persisted nullable boolean.
func (o ImageOutcome) NullableBool() *bool {
	switch o {
	case OutcomeSucceeded:
		v := true
		return &v
	case OutcomeFailed:
		v := false
		return &v
	default:
		return nil
	}
}

// OutcomeFromNullableBool restores the tri-state from the persisted column.
func OutcomeFromNullableBool(v *bool) ImageOutcome {
	switch {
	case v == nil:
		return OutcomePending
	case *v:
		return OutcomeSucceeded
	default:
		return OutcomeFailed
	}
}

// GeneratedImage is one prompt-instance within a job. The job exclusively owns
// its images; rows are created in bulk at job creation and mutated once per
// attempt.
type GeneratedImage struct {
	ID                           string
	JobID                        string
	OriginalFilename             string
	InputImagePath               string
	BoardImagePath               string
	PromptText                   string
	OutputImagePath              string
	OutputImagePathUnwatermarked string
	Outcome                      ImageOutcome
	ErrorMessage                 string
	CreatedAt                    time.Time
	ProcessedAt                  *time.Time
}
