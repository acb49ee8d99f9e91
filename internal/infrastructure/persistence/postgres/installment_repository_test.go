package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application/services/testhelpers"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/persistence/postgres"
)

type InstallmentRepositoryTestSuite struct {
	suite.Suite
	testDB *testhelpers.TestDatabase
	repo   *postgres.InstallmentRepository
}

func TestInstallmentRepositorySuite(t *testing.T) {
	suite.Run(t, new(InstallmentRepositoryTestSuite))
}

func (suite *InstallmentRepositoryTestSuite) SetupSuite() {
	suite.testDB = testhelpers.SetupTestDatabase(suite.T())
	suite.repo = postgres.NewInstallmentRepository(suite.testDB.DB.Pool)
}

func (suite *InstallmentRepositoryTestSuite) TearDownSuite() {
	suite.testDB.Cleanup(suite.T())
}

func (suite *InstallmentRepositoryTestSuite) SetupTest() {
	suite.testDB.CleanTables(suite.T())
}

func (suite *InstallmentRepositoryTestSuite) seedOrder(code string) {
	t := suite.T()
	_, err := suite.testDB.DB.Pool.Exec(context.Background(), `
		INSERT INTO orders (code, event_slug, event_name, event_date, currency, total, status, customer_email, organizer_emails)
		VALUES ($1, 'democon', 'DemoCon', $2, 'CHF', 120.00, 'pending', 'customer@example.org', '{orga@example.org}')
	`, code, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func (suite *InstallmentRepositoryTestSuite) seedSchedule(code string, count int, start time.Time) []*domain.Installment {
	t := suite.T()
	suite.seedOrder(code)

	schedule, err := domain.CalculateSchedule(decimal.RequireFromString("120.00"), count, start)
	require.NoError(t, err)

	installments, err := domain.NewInstallments(code, "CHF", "tok-77", schedule, start)
	require.NoError(t, err)

	require.NoError(t, suite.repo.CreateBatch(context.Background(), installments))
	return installments
}

func (suite *InstallmentRepositoryTestSuite) Test_CreateBatch_And_FindByOrder() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	suite.seedSchedule("ORD01", 3, start)

	found, err := suite.repo.FindByOrder(ctx, "ORD01")
	require.NoError(t, err)
	require.Len(t, found, 3)

	for i, inst := range found {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, 3, inst.NumInstallments)
		assert.Equal(t, domain.StatusScheduled, inst.Status)
		assert.Equal(t, "CHF", inst.Currency)
		require.NotNil(t, inst.TokenID)
		assert.Equal(t, "tok-77", *inst.TokenID)
	}
	assert.True(t, found[0].Amount.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, start, found[0].DueDate.UTC())
	assert.Equal(t, start.AddDate(0, 0, 30), found[1].DueDate.UTC())
}

func (suite *InstallmentRepositoryTestSuite) Test_CreateBatch_RejectsDuplicateSchedule() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	installments := suite.seedSchedule("ORD02", 2, start)
	for _, inst := range installments {
		inst.ID = ""
	}

	err := suite.repo.CreateBatch(ctx, installments)
	require.Error(t, err)

	found, findErr := suite.repo.FindByOrder(ctx, "ORD02")
	require.NoError(t, findErr)
	assert.Len(t, found, 2)
}

func (suite *InstallmentRepositoryTestSuite) Test_FindDue_ReturnsOnlyScheduledAndDue() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	installments := suite.seedSchedule("ORD03", 3, start)

	// settle the first one so it no longer shows up
	require.NoError(t, installments[0].MarkPaid("9001", start))
	require.NoError(t, suite.repo.Update(ctx, installments[0]))

	due, err := suite.repo.FindDue(ctx, start.AddDate(0, 0, 30), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].Number)

	none, err := suite.repo.FindDue(ctx, start.AddDate(0, 0, 29), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func (suite *InstallmentRepositoryTestSuite) Test_FindRetryable_And_GraceExpired_SplitOnDeadline() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	deadline := start.AddDate(0, 0, 3)

	installments := suite.seedSchedule("ORD04", 2, start)
	require.NoError(t, installments[0].MarkFailed("card declined", deadline))
	require.NoError(t, suite.repo.Update(ctx, installments[0]))

	retryable, err := suite.repo.FindRetryable(ctx, deadline.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, 1, retryable[0].Number)
	require.NotNil(t, retryable[0].FailureReason)
	assert.Equal(t, "card declined", *retryable[0].FailureReason)

	expired, err := suite.repo.FindGraceExpired(ctx, deadline.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = suite.repo.FindGraceExpired(ctx, deadline, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, 1, expired[0].Number)

	retryable, err = suite.repo.FindRetryable(ctx, deadline, 10)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func (suite *InstallmentRepositoryTestSuite) Test_Update_StaleVersionLoses() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	installments := suite.seedSchedule("ORD05", 2, start)
	first := installments[0]
	stale := *first

	require.NoError(t, first.MarkPending("9002"))
	require.NoError(t, suite.repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	require.NoError(t, stale.MarkFailed("card declined", start.AddDate(0, 0, 3)))
	err := suite.repo.Update(ctx, &stale)
	require.ErrorIs(t, err, application.ErrStaleInstallment)

	found, err := suite.repo.FindByOrder(ctx, "ORD05")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, found[0].Status)
}

func (suite *InstallmentRepositoryTestSuite) Test_SumPaidByOrder() {
	ctx := context.Background()
	t := suite.T()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	installments := suite.seedSchedule("ORD06", 3, start)
	require.NoError(t, installments[0].MarkPaid("9003", start))
	require.NoError(t, suite.repo.Update(ctx, installments[0]))
	require.NoError(t, installments[1].MarkPaid("9004", start.AddDate(0, 0, 30)))
	require.NoError(t, suite.repo.Update(ctx, installments[1]))

	sum, err := suite.repo.SumPaidByOrder(ctx, "ORD06")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("80.00")), "got %s", sum)

	empty, err := suite.repo.SumPaidByOrder(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}
