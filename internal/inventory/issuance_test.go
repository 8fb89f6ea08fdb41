// internal/inventory/issuance_test.go
package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolforge/internal/notify"
)

func TestExtensionApprovalAddsOneLoanPeriod(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, notifier := newTestService(t, db, f)
	ctx := context.Background()

	due := time.Now().UTC().Add(2 * 24 * time.Hour)
	issuanceID := seedIssuance(t, db, f, 3, StatusIssued, due)

	issuance, err := svc.RequestExtension(ctx, f.worker(), issuanceID)
	require.NoError(t, err)
	assert.Equal(t, StatusExtensionRequested, issuance.Status)

	issuance, err = svc.ResolveExtension(ctx, f.supervisor(), issuanceID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusExtended, issuance.Status)

	// The new due date is the old one plus the loan period, not "now plus
	// the loan period".
	assert.WithinDuration(t, due.Add(loanPeriod), issuance.DueDate, time.Second)

	decided := notifier.byKind(notify.KindExtensionDecided)
	require.Len(t, decided, 1)
	assert.Equal(t, "approved", decided[0].Outcome)

	// A second extension stacks another period on top.
	_, err = svc.RequestExtension(ctx, f.worker(), issuanceID)
	require.NoError(t, err)
	issuance, err = svc.ResolveExtension(ctx, f.supervisor(), issuanceID, true)
	require.NoError(t, err)
	assert.WithinDuration(t, due.Add(2*loanPeriod), issuance.DueDate, time.Second)
}

func TestExtensionDenialRestoresIssuedWithoutMovingDueDate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, notifier := newTestService(t, db, f)
	ctx := context.Background()

	due := time.Now().UTC().Add(3 * 24 * time.Hour)
	issuanceID := seedIssuance(t, db, f, 2, StatusIssued, due)

	_, err := svc.RequestExtension(ctx, f.worker(), issuanceID)
	require.NoError(t, err)

	issuance, err := svc.ResolveExtension(ctx, f.supervisor(), issuanceID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issuance.Status)
	assert.WithinDuration(t, due, issuance.DueDate, time.Second)

	decided := notifier.byKind(notify.KindExtensionDecided)
	require.Len(t, decided, 1)
	assert.Equal(t, "denied", decided[0].Outcome)
}

func TestExtensionGuards(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	overdueID := seedIssuance(t, db, f, 1, StatusIssued, time.Now().UTC().Add(-time.Hour))
	_, err := svc.RequestExtension(ctx, f.worker(), overdueID)
	require.ErrorIs(t, err, ErrExtensionWhenOverdue)

	currentID := seedIssuance(t, db, f, 1, StatusIssued, time.Now().UTC().Add(24*time.Hour))

	stranger := f.worker()
	stranger.ID = uuid.New()
	_, err = svc.RequestExtension(ctx, stranger, currentID)
	require.ErrorIs(t, err, ErrOwnershipViolation)

	// While a decision is pending, nothing else may move the issuance.
	_, err = svc.RequestExtension(ctx, f.worker(), currentID)
	require.NoError(t, err)
	_, err = svc.RequestExtension(ctx, f.worker(), currentID)
	require.ErrorIs(t, err, ErrInvalidIssuanceState)
	_, err = svc.InitiateReturn(ctx, f.worker(), currentID)
	require.ErrorIs(t, err, ErrInvalidIssuanceState)

	// Resolution is scoped to the issuance's factory.
	otherFactory := uuid.New()
	outsider := f.supervisor()
	outsider.FactoryID = &otherFactory
	_, err = svc.ResolveExtension(ctx, outsider, currentID, true)
	require.ErrorIs(t, err, ErrOwnershipViolation)
}

func TestProcessReturnReconcilesLedger(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 20, 10, 10)
	issuanceID := seedIssuance(t, db, f, 10, StatusIssued, time.Now().UTC().Add(24*time.Hour))

	_, err := svc.InitiateReturn(ctx, f.worker(), issuanceID)
	require.NoError(t, err)

	issuance, err := svc.ProcessReturn(ctx, f.supervisor(), issuanceID, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, issuance.Status)
	require.NotNil(t, issuance.ReturnedAt)

	record, err := svc.GetStock(ctx, f.FactoryID, f.ToolID)
	require.NoError(t, err)
	assert.Equal(t, int64(17), record.Total)
	assert.Equal(t, int64(17), record.Available)
	assert.Equal(t, int64(0), record.Issued)
	requireLedgerConsistent(t, db, f.FactoryID, f.ToolID)

	var fit, unfit int64
	require.NoError(t, db.QueryRow(`
		SELECT fit_quantity, unfit_quantity FROM tool_returns WHERE issuance_id = $1
	`, issuanceID).Scan(&fit, &unfit))
	assert.Equal(t, int64(7), fit)
	assert.Equal(t, int64(3), unfit)

	// Terminal: a second reconciliation must fail and leave the audit row
	// alone.
	_, err = svc.ProcessReturn(ctx, f.supervisor(), issuanceID, 7, 3)
	require.ErrorIs(t, err, ErrInvalidIssuanceState)
}

func TestProcessReturnRejectsQuantityMismatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 10, 5, 5)
	issuanceID := seedIssuance(t, db, f, 5, StatusIssued, time.Now().UTC().Add(24*time.Hour))

	_, err := svc.ProcessReturn(ctx, f.supervisor(), issuanceID, 3, 1)
	require.ErrorIs(t, err, ErrQuantityMismatch)

	_, err = svc.ProcessReturn(ctx, f.supervisor(), issuanceID, 6, -1)
	require.ErrorIs(t, err, ErrQuantityMismatch)

	// The failed attempts must not have touched anything.
	issuance, err := svc.GetIssuance(ctx, issuanceID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issuance.Status)

	record, err := svc.GetStock(ctx, f.FactoryID, f.ToolID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), record.Issued)
}

func TestConfiscateRequiresOverdue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 10, 6, 4)
	issuanceID := seedIssuance(t, db, f, 4, StatusIssued, time.Now().UTC().Add(24*time.Hour))

	_, err := svc.Confiscate(ctx, f.supervisor(), issuanceID)
	require.ErrorIs(t, err, ErrNotYetOverdue)

	issuance, err := svc.GetIssuance(ctx, issuanceID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issuance.Status)
}

func TestConfiscateWritesOffWholeQuantity(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 10, 6, 4)
	issuanceID := seedIssuance(t, db, f, 4, StatusExtended, time.Now().UTC().Add(-time.Hour))

	issuance, err := svc.Confiscate(ctx, f.supervisor(), issuanceID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfiscated, issuance.Status)

	// The whole batch leaves the system as unfit: total drops, nothing
	// returns to available.
	record, err := svc.GetStock(ctx, f.FactoryID, f.ToolID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), record.Total)
	assert.Equal(t, int64(6), record.Available)
	assert.Equal(t, int64(0), record.Issued)
	requireLedgerConsistent(t, db, f.FactoryID, f.ToolID)

	var fit, unfit int64
	require.NoError(t, db.QueryRow(`
		SELECT fit_quantity, unfit_quantity FROM tool_returns WHERE issuance_id = $1
	`, issuanceID).Scan(&fit, &unfit))
	assert.Equal(t, int64(0), fit)
	assert.Equal(t, int64(4), unfit)

	// Terminal.
	_, err = svc.Confiscate(ctx, f.supervisor(), issuanceID)
	require.ErrorIs(t, err, ErrInvalidIssuanceState)
}

func TestListWorkerIssuancesOrdersByDueDate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	later := seedIssuance(t, db, f, 1, StatusIssued, time.Now().UTC().Add(5*24*time.Hour))
	sooner := seedIssuance(t, db, f, 1, StatusExtended, time.Now().UTC().Add(24*time.Hour))
	seedIssuance(t, db, f, 1, StatusReturned, time.Now().UTC().Add(24*time.Hour))

	issuances, err := svc.ListWorkerIssuances(ctx, f.worker())
	require.NoError(t, err)
	require.Len(t, issuances, 2, "closed issuances are excluded")
	assert.Equal(t, sooner, issuances[0].ID)
	assert.Equal(t, later, issuances[1].ID)
}

func TestListOverdueIsAPureRead(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	now := time.Now().UTC()
	oldest := seedIssuance(t, db, f, 1, StatusIssued, now.Add(-72*time.Hour))
	newer := seedIssuance(t, db, f, 1, StatusExtended, now.Add(-time.Hour))
	seedIssuance(t, db, f, 1, StatusIssued, now.Add(24*time.Hour))
	seedIssuance(t, db, f, 1, StatusConfiscated, now.Add(-72*time.Hour))

	overdue, err := svc.ListOverdue(ctx, f.FactoryID, now)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, oldest, overdue[0].ID)
	assert.Equal(t, newer, overdue[1].ID)

	// Running the sweep again must see the same picture; the view flips no
	// statuses.
	again, err := svc.ListOverdue(ctx, f.FactoryID, now)
	require.NoError(t, err)
	require.Len(t, again, 2)
	for i := range again {
		assert.Equal(t, overdue[i].ID, again[i].ID)
		assert.Equal(t, overdue[i].Status, again[i].Status)
	}
}
