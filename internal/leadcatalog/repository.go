// Package leadcatalog is the read-mostly repository over the external
// catalog of leads, sequences, steps and templates. This core never writes
// Lead, Sequence, SequenceStep, or SequenceTemplate rows — those are owned
// by an external enrollment/CRM system — with the single exception of
// LeadSequenceState, which the Scheduler and Worker advance.
package leadcatalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/allisson/leadsequencer/internal/database"
	"github.com/allisson/leadsequencer/internal/domain"
	domainerrors "github.com/allisson/leadsequencer/internal/errors"
)

// Repository loads catalog rows and advances LeadSequenceState.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindEligible returns up to limit leads whose next step is due: state must
// be PENDING or RUNNING, the per-step cooldown must have elapsed, and the
// in-flight window (state not flipped to RUNNING within the last hour) must
// have expired.
func (r *Repository) FindEligible(ctx context.Context, limit int) ([]domain.PendingLead, error) {
	querier := database.GetTx(ctx, r.db)

	query := `
SELECT s.id, s.lead_id, s.sequence_id, s.current_step, st.id, st.step_number, st.min_interval_min
FROM lead_sequence_state s
JOIN sequence_step st ON st.sequence_id = s.sequence_id AND st.step_number = s.current_step + 1
WHERE s.status IN ('PENDING', 'RUNNING')
  AND (s.last_sent_at IS NULL OR now() - s.last_sent_at > (st.min_interval_min * interval '1 minute'))
  AND s.updated_at < now() - interval '1 hour'
LIMIT $1`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var eligible []domain.PendingLead
	for rows.Next() {
		var p domain.PendingLead
		if err := rows.Scan(&p.LeadStateID, &p.LeadID, &p.SequenceID, &p.CurrentStep, &p.StepID, &p.StepNumber, &p.MinIntervalMin); err != nil {
			return nil, err
		}
		eligible = append(eligible, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return eligible, nil
}

// MarkRunning flips a LeadSequenceState to RUNNING as part of the
// Scheduler's enqueue transaction. The status IN (...)
// guard prevents racing with a Worker that already advanced the row; a
// zero-row update means the lead was concurrently claimed and the caller
// should treat the enqueue as a no-op rather than an error.
func (r *Repository) MarkRunning(ctx context.Context, leadStateID string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	res, err := querier.ExecContext(
		ctx,
		`UPDATE lead_sequence_state SET status = 'RUNNING', updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`,
		leadStateID,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetLead loads a lead by id for the Worker's per-message context load.
func (r *Repository) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	querier := database.GetTx(ctx, r.db)

	var l domain.Lead
	var validity string
	err := querier.QueryRowContext(
		ctx,
		`SELECT id, email, first_name, last_name, company_name, industry, company_size,
		        country, state, address, linkedin_url, source, job_title,
		        is_subscribed_to_email, is_email_valid
		 FROM lead WHERE id = $1`,
		id,
	).Scan(
		&l.ID, &l.Email, &l.FirstName, &l.LastName, &l.CompanyName, &l.Industry, &l.CompanySize,
		&l.Country, &l.State, &l.Address, &l.LinkedinURL, &l.Source, &l.JobTitle,
		&l.IsSubscribedToEmail, &validity,
	)
	if err == sql.ErrNoRows {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.IsEmailValid = domain.EmailValidity(validity)
	return &l, nil
}

// GetLeadEnrichment loads the lead_enrichment row for a lead, if one exists.
// A missing row is not an error: enrichment is best-effort, produced by an
// external provider some time after the lead itself, so this returns
// (nil, nil) instead of ErrNotFound to let the Worker render without it.
func (r *Repository) GetLeadEnrichment(ctx context.Context, leadID string) (*domain.LeadEnrichment, error) {
	querier := database.GetTx(ctx, r.db)

	var e domain.LeadEnrichment
	err := querier.QueryRowContext(
		ctx,
		`SELECT lead_id, company_domain, company_website, company_description,
		        company_revenue, technologies, phone_number, twitter_url
		 FROM lead_enrichment WHERE lead_id = $1`,
		leadID,
	).Scan(
		&e.LeadID, &e.CompanyDomain, &e.CompanyWebsite, &e.CompanyDescription,
		&e.CompanyRevenue, &e.Technologies, &e.PhoneNumber, &e.TwitterURL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetSequenceStep loads a step by id.
func (r *Repository) GetSequenceStep(ctx context.Context, id string) (*domain.SequenceStep, error) {
	querier := database.GetTx(ctx, r.db)

	var s domain.SequenceStep
	err := querier.QueryRowContext(
		ctx,
		`SELECT id, sequence_id, step_number, min_interval_min, require_no_reply, stop_on_bounce
		 FROM sequence_step WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.SequenceID, &s.StepNumber, &s.MinIntervalMin, &s.RequireNoReply, &s.StopOnBounce)
	if err == sql.ErrNoRows {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetTemplatesForStep returns the templates attached to a step through the
// _SequenceStepToSequenceTemplate join table. The Worker picks one uniformly
// at random from the result.
func (r *Repository) GetTemplatesForStep(ctx context.Context, stepID string) ([]domain.SequenceTemplate, error) {
	querier := database.GetTx(ctx, r.db)

	rows, err := querier.QueryContext(
		ctx,
		`SELECT t.id, t.subject, t.body
		 FROM sequence_template t
		 JOIN "_SequenceStepToSequenceTemplate" j ON j."B" = t.id
		 WHERE j."A" = $1`,
		stepID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var templates []domain.SequenceTemplate
	for rows.Next() {
		var t domain.SequenceTemplate
		if err := rows.Scan(&t.ID, &t.Subject, &t.Body); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

// MaxStepNumber returns the highest step_number defined for a sequence,
// used by AdvanceState to decide RUNNING vs COMPLETED.
func (r *Repository) MaxStepNumber(ctx context.Context, sequenceID string) (int, error) {
	querier := database.GetTx(ctx, r.db)

	var max int
	err := querier.QueryRowContext(
		ctx,
		`SELECT max(step_number) FROM sequence_step WHERE sequence_id = $1`,
		sequenceID,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

// AdvanceResult is the row returned by AdvanceState.
type AdvanceResult struct {
	ID          string
	Status      domain.LeadSequenceStatus
	CurrentStep int
}

// AdvanceState performs the Worker's conditional state advancement (spec
// §4.3 step 6). A nil result with no error means zero rows matched — the
// state was concurrently advanced or is terminal; callers must treat that
// as success (ack) rather than retry, so the message is not sent yet again
// through the retry path.
func (r *Repository) AdvanceState(ctx context.Context, leadStateID, sequenceID string) (*AdvanceResult, error) {
	maxStep, err := r.MaxStepNumber(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("load max step number: %w", err)
	}

	querier := database.GetTx(ctx, r.db)

	query := `
UPDATE lead_sequence_state SET
  current_step = current_step + 1,
  status = CASE WHEN current_step + 1 >= $2 THEN 'COMPLETED' ELSE 'RUNNING' END,
  last_sent_at = now(), failure_count = 0, updated_at = now()
WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
RETURNING id, status, current_step`

	var res AdvanceResult
	var status string
	err = querier.QueryRowContext(ctx, query, leadStateID, maxStep).Scan(&res.ID, &status, &res.CurrentStep)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res.Status = domain.LeadSequenceStatus(status)
	return &res, nil
}
