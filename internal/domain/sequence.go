package domain

import "time"

// LeadSequenceStatus is the state machine driving a lead through a sequence.
type LeadSequenceStatus string

const (
	LeadSequenceStatusPending   LeadSequenceStatus = "PENDING"
	LeadSequenceStatusRunning   LeadSequenceStatus = "RUNNING"
	LeadSequenceStatusCompleted LeadSequenceStatus = "COMPLETED"
	LeadSequenceStatusFailed    LeadSequenceStatus = "FAILED"
	LeadSequenceStatusPaused    LeadSequenceStatus = "PAUSED"
)

// SequenceStep is one ordered rung of a Sequence.
type SequenceStep struct {
	ID             string
	SequenceID     string
	StepNumber     int
	MinIntervalMin int
	RequireNoReply bool
	StopOnBounce   bool
	TemplateIDs    []string
}

// SequenceTemplate carries the subject/body placeholder templates for a step.
// EmailCampaignTemplate rows are joined in through _SequenceStepToSequenceTemplate;
// this core treats the pair as a single flattened record since it never writes
// either table.
type SequenceTemplate struct {
	ID      string
	Subject string
	Body    string
}

// LeadSequenceState is the one-row-per-(lead,sequence) cursor this core
// advances. It is created by an external enrollment path and owned by the
// Worker thereafter.
type LeadSequenceState struct {
	ID           string
	LeadID       string
	SequenceID   string
	CurrentStep  int
	Status       LeadSequenceStatus
	LastSentAt   *time.Time
	FailureCount int
	UpdatedAt    time.Time
}
