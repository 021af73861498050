package leadcatalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEligible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	rows := sqlmock.NewRows([]string{"id", "lead_id", "sequence_id", "current_step", "id", "step_number", "min_interval_min"}).
		AddRow("state-1", "lead-1", "seq-1", 0, "step-1", 1, 0)

	mock.ExpectQuery("SELECT s.id, s.lead_id").WithArgs(50).WillReturnRows(rows)

	eligible, err := repo.FindEligible(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "state-1", eligible[0].LeadStateID)
	assert.Equal(t, 1, eligible[0].StepNumber)
}

func TestMarkRunning_Succeeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectExec("UPDATE lead_sequence_state SET status = 'RUNNING'").
		WithArgs("state-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkRunning(context.Background(), "state-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkRunning_NoRowsMeansConcurrentlyAdvanced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectExec("UPDATE lead_sequence_state SET status = 'RUNNING'").
		WithArgs("state-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRunning(context.Background(), "state-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetLead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "email", "first_name", "last_name", "company_name", "industry", "company_size",
		"country", "state", "address", "linkedin_url", "source", "job_title",
		"is_subscribed_to_email", "is_email_valid",
	}).AddRow("lead-1", "a@example.com", "Ann", "Lee", "Acme", "tech", "50-100",
		"US", "CA", "123 Main St", "https://linkedin.com/x", "import", "CTO", true, "VALID")

	mock.ExpectQuery("SELECT id, email, first_name").WithArgs("lead-1").WillReturnRows(rows)

	lead, err := repo.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", lead.Email)
	assert.True(t, lead.IsSubscribedToEmail)
}

func TestGetLeadEnrichment_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	rows := sqlmock.NewRows([]string{
		"lead_id", "company_domain", "company_website", "company_description",
		"company_revenue", "technologies", "phone_number", "twitter_url",
	}).AddRow("lead-1", "acme.com", "https://acme.com", "Widgets", "$10M-$50M", "Go,Postgres", "+1-555-0100", "https://twitter.com/acme")

	mock.ExpectQuery("SELECT lead_id, company_domain").WithArgs("lead-1").WillReturnRows(rows)

	enrichment, err := repo.GetLeadEnrichment(context.Background(), "lead-1")
	require.NoError(t, err)
	require.NotNil(t, enrichment)
	assert.Equal(t, "acme.com", enrichment.CompanyDomain)
	assert.Equal(t, "Go,Postgres", enrichment.Technologies)
}

func TestGetLeadEnrichment_MissingRowIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("SELECT lead_id, company_domain").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"lead_id", "company_domain", "company_website", "company_description",
			"company_revenue", "technologies", "phone_number", "twitter_url",
		}))

	enrichment, err := repo.GetLeadEnrichment(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Nil(t, enrichment)
}

func TestAdvanceState_NonFinalStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("SELECT max\\(step_number\\)").
		WithArgs("seq-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

	mock.ExpectQuery("UPDATE lead_sequence_state SET").
		WithArgs("state-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "current_step"}).AddRow("state-1", "RUNNING", 1))

	res, err := repo.AdvanceState(context.Background(), "state-1", "seq-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "RUNNING", string(res.Status))
	assert.Equal(t, 1, res.CurrentStep)
}

func TestAdvanceState_FinalStepCompletes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("SELECT max\\(step_number\\)").
		WithArgs("seq-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

	mock.ExpectQuery("UPDATE lead_sequence_state SET").
		WithArgs("state-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "current_step"}).AddRow("state-1", "COMPLETED", 3))

	res, err := repo.AdvanceState(context.Background(), "state-1", "seq-1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "COMPLETED", string(res.Status))
}

func TestAdvanceState_ZeroRowsIsNotError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("SELECT max\\(step_number\\)").
		WithArgs("seq-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))

	mock.ExpectQuery("UPDATE lead_sequence_state SET").
		WithArgs("state-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "current_step"}))

	res, err := repo.AdvanceState(context.Background(), "state-1", "seq-1")
	require.NoError(t, err)
	assert.Nil(t, res)
}
