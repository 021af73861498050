package domain

import "time"

// SequenceTopic is the single broker queue name this core publishes to and
// consumes from.
const SequenceTopic = "SEQUENCE_TOPIC"

// Outbox is the durable hand-off row from Scheduler to Pump to broker.
// idemKey is the system's deduplication anchor: the unique constraint on it
// is what makes scheduler retries safe.
type Outbox struct {
	ID          string
	Topic       string
	Payload     []byte
	IdemKey     string
	Processed   bool
	ProcessedAt *time.Time
	Retries     int
	MaxRetries  int
	CreatedAt   time.Time
}

// DefaultMaxRetries is the outbox row's default retry ceiling, distinct from
// the worker's broker-redelivery ceiling.
const DefaultMaxRetries = 5

// PendingLead is the eligibility row the Scheduler materializes into
// Outbox.Payload and the Worker decodes off the broker. Field names and
// JSON tags follow the source catalog's mixed camelCase identifiers exactly,
// since this is the wire contract between the two processes.
type PendingLead struct {
	LeadStateID    string `json:"lead_state_id" validate:"required"`
	LeadID         string `json:"lead_id" validate:"required"`
	SequenceID     string `json:"sequence_id" validate:"required"`
	CurrentStep    int    `json:"current_step" validate:"gte=0"`
	StepID         string `json:"step_id" validate:"required"`
	StepNumber     int    `json:"step_number" validate:"gte=1"`
	MinIntervalMin int    `json:"min_interval_min" validate:"gte=0"`
}
