// internal/inventory/workflow_test.go
package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolforge/internal/notify"
)

func TestCreateRequestValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	unassigned := f.worker()
	unassigned.FactoryID = nil
	_, err := svc.CreateRequest(ctx, unassigned, NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrNoFactoryAssignment)

	_, err = svc.CreateRequest(ctx, f.worker(), NewRequestInput{})
	require.Error(t, err)

	_, err = svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Nature: "URGENT",
		Lines:  []RequestLine{{ToolID: f.ToolID, Quantity: 1}},
	})
	require.Error(t, err)

	// The same tool cannot appear on two lines.
	_, err = svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{
			{ToolID: f.ToolID, Quantity: 1},
			{ToolID: f.ToolID, Quantity: 2},
		},
	})
	require.Error(t, err)
}

func TestCreateRequestAssignsNumberAndNotifies(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, notifier := newTestService(t, db, f)

	request, err := svc.CreateRequest(context.Background(), f.worker(), NewRequestInput{
		Nature:  NatureReplacement,
		Comment: "old one snapped",
		Lines:   []RequestLine{{ToolID: f.ToolID, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(request.RequestNumber, "TR-"),
		"request number %q should carry the TR- prefix", request.RequestNumber)
	assert.Equal(t, RequestPending, request.Status)
	assert.Equal(t, NatureReplacement, request.Nature)
	require.Len(t, request.Lines, 1)

	created := notifier.byKind(notify.KindRequestCreated)
	require.Len(t, created, 1)
	assert.Equal(t, f.SupervisorID, created[0].RecipientID)

	loaded, err := svc.GetRequest(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.RequestNumber, loaded.RequestNumber)
	assert.Equal(t, request.Lines, loaded.Lines)
}

func TestApproveRequestIssuesEveryLine(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	secondTool := seedTool(t, db)
	svc, notifier := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 10, 10, 0)
	seedStock(t, db, f.FactoryID, secondTool, 5, 5, 0)

	request, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{
			{ToolID: f.ToolID, Quantity: 3},
			{ToolID: secondTool, Quantity: 2},
		},
	})
	require.NoError(t, err)

	before := time.Now().UTC()
	issuances, err := svc.ApproveRequest(ctx, f.supervisor(), request.ID)
	require.NoError(t, err)
	require.Len(t, issuances, 2)

	for _, issuance := range issuances {
		assert.Equal(t, StatusIssued, issuance.Status)
		assert.Equal(t, f.WorkerID, issuance.WorkerID)
		require.NotNil(t, issuance.IssuerID)
		assert.Equal(t, f.SupervisorID, *issuance.IssuerID)
		assert.WithinDuration(t, before.Add(loanPeriod), issuance.DueDate, 5*time.Second)
	}

	record, err := svc.GetStock(ctx, f.FactoryID, f.ToolID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), record.Available)
	assert.Equal(t, int64(3), record.Issued)

	loaded, err := svc.GetRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestFulfilled, loaded.Status)
	require.NotNil(t, loaded.ApprovedBy)
	assert.Equal(t, f.SupervisorID, *loaded.ApprovedBy)

	approved := notifier.byKind(notify.KindRequestApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, f.WorkerID, approved[0].RecipientID)

	// A fulfilled request cannot be approved again.
	_, err = svc.ApproveRequest(ctx, f.supervisor(), request.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestApproveRequestIsAllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	secondTool := seedTool(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 10, 10, 0)
	seedStock(t, db, f.FactoryID, secondTool, 1, 1, 0)

	request, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{
			{ToolID: f.ToolID, Quantity: 3},
			{ToolID: secondTool, Quantity: 2}, // only 1 available
		},
	})
	require.NoError(t, err)

	_, err = svc.ApproveRequest(ctx, f.supervisor(), request.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The failed second line must have rolled back the first line's
	// reservation too.
	record, err := svc.GetStock(ctx, f.FactoryID, f.ToolID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), record.Available)
	assert.Equal(t, int64(0), record.Issued)

	loaded, err := svc.GetRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestPending, loaded.Status)

	var issuanceCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM issuances WHERE request_id = $1`, request.ID).Scan(&issuanceCount))
	assert.Zero(t, issuanceCount)
}

func TestApproveRequestEnforcesFactoryScope(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	seedStock(t, db, f.FactoryID, f.ToolID, 5, 5, 0)
	request, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 1}},
	})
	require.NoError(t, err)

	otherFactory := uuid.New()
	outsider := f.supervisor()
	outsider.FactoryID = &otherFactory

	_, err = svc.ApproveRequest(ctx, outsider, request.ID)
	require.ErrorIs(t, err, ErrOwnershipViolation)
}

func TestRejectRequestRequiresComment(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, notifier := newTestService(t, db, f)
	ctx := context.Background()

	request, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 1}},
	})
	require.NoError(t, err)

	err = svc.RejectRequest(ctx, f.supervisor(), request.ID, "")
	require.Error(t, err)

	err = svc.RejectRequest(ctx, f.supervisor(), request.ID, "not justified for this job")
	require.NoError(t, err)

	loaded, err := svc.GetRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestRejected, loaded.Status)
	assert.Equal(t, "not justified for this job", loaded.Comment)

	rejected := notifier.byKind(notify.KindRequestRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "not justified for this job", rejected[0].Outcome)

	// Terminal: neither approval nor a second rejection may follow.
	_, err = svc.ApproveRequest(ctx, f.supervisor(), request.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	err = svc.RejectRequest(ctx, f.supervisor(), request.ID, "again")
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestListFactoryRequestsFiltersByStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	f := seedFixture(t, db)
	svc, _ := newTestService(t, db, f)
	ctx := context.Background()

	first, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 1}},
	})
	require.NoError(t, err)
	second, err := svc.CreateRequest(ctx, f.worker(), NewRequestInput{
		Lines: []RequestLine{{ToolID: f.ToolID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, f.supervisor(), second.ID, "duplicate"))

	pending, err := svc.ListFactoryRequests(ctx, f.FactoryID, RequestPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	all, err := svc.ListFactoryRequests(ctx, f.FactoryID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
