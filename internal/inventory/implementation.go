// internal/inventory/implementation.go
package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"toolforge/internal/notify"
	"toolforge/pkg/eventstore"
)

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
	tools      ToolDirectory
	workers    WorkerDirectory
	notifier   notify.Notifier
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewService creates a new inventory service instance.
func NewService(es *eventstore.EventStore, db *sql.DB, tools ToolDirectory, workers WorkerDirectory, notifier notify.Notifier, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &service{
		eventStore: es,
		db:         db,
		tools:      tools,
		workers:    workers,
		notifier:   notifier,
		logger:     logger,
		tracer:     otel.Tracer("toolforge/inventory"),
	}
}

// CreateRequest files a new tool request for the acting worker. The worker
// must hold a factory assignment, every referenced tool must exist and all
// quantities must be at least one.
func (s *service) CreateRequest(ctx context.Context, actor Actor, input NewRequestInput) (*ToolRequest, error) {
	if actor.FactoryID == nil {
		return nil, fmt.Errorf("create request: %w", ErrNoFactoryAssignment)
	}
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("create request: at least one line item is required")
	}
	switch input.Nature {
	case "":
		input.Nature = NatureFresh
	case NatureFresh, NatureReplacement:
	default:
		return nil, fmt.Errorf("create request: unknown nature %q", input.Nature)
	}

	seen := make(map[uuid.UUID]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("tool %s: %w", line.ToolID, ErrInvalidQuantity)
		}
		if seen[line.ToolID] {
			return nil, fmt.Errorf("tool %s appears twice in the request", line.ToolID)
		}
		seen[line.ToolID] = true
		if _, err := s.tools.GetTool(ctx, line.ToolID); err != nil {
			return nil, fmt.Errorf("tool %s: %w", line.ToolID, ErrToolNotFound)
		}
	}

	request := &ToolRequest{
		ID:        uuid.New(),
		FactoryID: *actor.FactoryID,
		WorkerID:  actor.ID,
		Nature:    input.Nature,
		Status:    RequestPending,
		Comment:   input.Comment,
		Lines:     input.Lines,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The request number comes from a sequence consumed inside the insert,
	// so the caller sees it without a second round trip.
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tool_requests (id, request_number, factory_id, worker_id, nature, status, comment)
		VALUES ($1, 'TR-' || LPAD(NEXTVAL('request_numbers')::text, 6, '0'), $2, $3, $4, $5, $6)
		RETURNING request_number, created_at, updated_at
	`, request.ID, request.FactoryID, request.WorkerID, request.Nature, request.Status, request.Comment).
		Scan(&request.RequestNumber, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	for _, line := range request.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_request_lines (id, request_id, tool_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), request.ID, line.ToolID, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("insert request line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit request: %w", err)
	}

	s.appendEvent(ctx, request.ID, "tool_request", "ToolRequestCreated", ToolRequestCreatedEvent{
		RequestID:     request.ID,
		RequestNumber: request.RequestNumber,
		FactoryID:     request.FactoryID,
		WorkerID:      request.WorkerID,
		Lines:         request.Lines,
	})
	s.notifySupervisors(ctx, request.FactoryID, notify.Event{
		Kind:      notify.KindRequestCreated,
		RequestID: request.ID,
		Outcome:   request.RequestNumber,
	})

	return request, nil
}

// GetRequest retrieves a request and its line items.
func (s *service) GetRequest(ctx context.Context, id uuid.UUID) (*ToolRequest, error) {
	request := &ToolRequest{}
	var approvedBy sql.Null[uuid.UUID]
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_number, factory_id, worker_id, nature, status, comment, approved_by, created_at, updated_at
		FROM tool_requests
		WHERE id = $1
	`, id).Scan(
		&request.ID, &request.RequestNumber, &request.FactoryID, &request.WorkerID,
		&request.Nature, &request.Status, &request.Comment, &approvedBy,
		&request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("request %s: %w", id, ErrRequestNotFound)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if approvedBy.Valid {
		request.ApprovedBy = &approvedBy.V
	}

	request.Lines, err = s.loadRequestLines(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) loadRequestLines(ctx context.Context, q querier, requestID uuid.UUID) ([]RequestLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tool_id, quantity
		FROM tool_request_lines
		WHERE request_id = $1
		ORDER BY tool_id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query request lines: %w", err)
	}
	defer rows.Close()

	var lines []RequestLine
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ToolID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan request line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListFactoryRequests returns a factory's requests, optionally filtered by
// status, newest first. This is the supervisor's approval queue.
func (s *service) ListFactoryRequests(ctx context.Context, factoryID uuid.UUID, status string) ([]*ToolRequest, error) {
	query := `
		SELECT id, request_number, factory_id, worker_id, nature, status, comment, approved_by, created_at, updated_at
		FROM tool_requests
		WHERE factory_id = $1
	`
	args := []interface{}{factoryID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []*ToolRequest
	for rows.Next() {
		request := &ToolRequest{}
		var approvedBy sql.Null[uuid.UUID]
		err := rows.Scan(
			&request.ID, &request.RequestNumber, &request.FactoryID, &request.WorkerID,
			&request.Nature, &request.Status, &request.Comment, &approvedBy,
			&request.CreatedAt, &request.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		if approvedBy.Valid {
			request.ApprovedBy = &approvedBy.V
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, request := range requests {
		if request.Lines, err = s.loadRequestLines(ctx, s.db, request.ID); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

// ApproveRequest approves a PENDING request and issues its tools in one
// transaction: every line's reservation and every issuance insert succeed
// together or the whole approval rolls back. The request lands directly on
// FULFILLED; APPROVED is instantaneous and never persisted.
func (s *service) ApproveRequest(ctx context.Context, actor Actor, requestID uuid.UUID) ([]*Issuance, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.approve_request")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := s.lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != RequestPending {
		return nil, fmt.Errorf("approve request in status %s: %w", request.Status, ErrInvalidStateTransition)
	}
	if actor.FactoryID == nil || *actor.FactoryID != request.FactoryID {
		return nil, fmt.Errorf("approve request for factory %s: %w", request.FactoryID, ErrOwnershipViolation)
	}

	request.Lines, err = s.loadRequestLines(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dueDate := now.Add(loanPeriod)
	issuances := make([]*Issuance, 0, len(request.Lines))

	for _, line := range request.Lines {
		if err := s.reserve(ctx, tx, request.FactoryID, line.ToolID, line.Quantity); err != nil {
			// Any failed reservation aborts the whole approval; the
			// deferred rollback undoes the earlier lines.
			return nil, err
		}

		issuance := &Issuance{
			ID:        uuid.New(),
			FactoryID: request.FactoryID,
			RequestID: &request.ID,
			WorkerID:  request.WorkerID,
			IssuerID:  &actor.ID,
			ToolID:    line.ToolID,
			Quantity:  line.Quantity,
			Status:    StatusIssued,
			IssuedAt:  now,
			DueDate:   dueDate,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO issuances (id, factory_id, request_id, worker_id, issuer_id, tool_id, quantity, status, issued_at, due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, issuance.ID, issuance.FactoryID, issuance.RequestID, issuance.WorkerID, issuance.IssuerID,
			issuance.ToolID, issuance.Quantity, issuance.Status, issuance.IssuedAt, issuance.DueDate)
		if err != nil {
			return nil, fmt.Errorf("insert issuance: %w", err)
		}
		issuances = append(issuances, issuance)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tool_requests
		SET status = $1, approved_by = $2, updated_at = NOW()
		WHERE id = $3
	`, RequestFulfilled, actor.ID, requestID)
	if err != nil {
		return nil, fmt.Errorf("update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}

	issuanceIDs := make([]uuid.UUID, len(issuances))
	for i, issuance := range issuances {
		issuanceIDs[i] = issuance.ID
	}
	s.appendEvent(ctx, request.ID, "tool_request", "ToolRequestFulfilled", ToolRequestFulfilledEvent{
		RequestID:   request.ID,
		ApprovedBy:  actor.ID,
		IssuanceIDs: issuanceIDs,
	})
	s.notifyWorker(ctx, request.WorkerID, notify.Event{
		Kind:      notify.KindRequestApproved,
		RequestID: request.ID,
		Outcome:   "approved",
	})

	return issuances, nil
}

// RejectRequest rejects a PENDING request with a mandatory comment. No
// ledger effect.
func (s *service) RejectRequest(ctx context.Context, actor Actor, requestID uuid.UUID, comment string) error {
	if comment == "" {
		return fmt.Errorf("reject request: a comment is mandatory")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := s.lockRequest(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if request.Status != RequestPending {
		return fmt.Errorf("reject request in status %s: %w", request.Status, ErrInvalidStateTransition)
	}
	if actor.FactoryID == nil || *actor.FactoryID != request.FactoryID {
		return fmt.Errorf("reject request for factory %s: %w", request.FactoryID, ErrOwnershipViolation)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tool_requests
		SET status = $1, comment = $2, updated_at = NOW()
		WHERE id = $3
	`, RequestRejected, comment, requestID)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rejection: %w", err)
	}

	s.appendEvent(ctx, request.ID, "tool_request", "ToolRequestRejected", ToolRequestRejectedEvent{
		RequestID: request.ID,
		Comment:   comment,
	})
	s.notifyWorker(ctx, request.WorkerID, notify.Event{
		Kind:      notify.KindRequestRejected,
		RequestID: request.ID,
		Outcome:   comment,
	})

	return nil
}

// lockRequest loads a request row under FOR UPDATE so concurrent approvals
// or rejections of the same request serialize.
func (s *service) lockRequest(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*ToolRequest, error) {
	request := &ToolRequest{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, request_number, factory_id, worker_id, nature, status, comment
		FROM tool_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&request.ID, &request.RequestNumber, &request.FactoryID, &request.WorkerID,
		&request.Nature, &request.Status, &request.Comment,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("request %s: %w", id, ErrRequestNotFound)
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}
	return request, nil
}

// appendEvent writes an audit event, logging rather than failing the
// operation when the event store is unavailable: the read model is already
// committed at that point.
func (s *service) appendEvent(ctx context.Context, aggregateID uuid.UUID, aggregateType, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal event data", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	version, err := s.eventStore.GetCurrentVersion(ctx, aggregateID)
	if err != nil {
		s.logger.Error("failed to read aggregate version", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	event := eventstore.Event{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     jsonData,
		Version:       version + 1,
	}
	if err := s.eventStore.AppendEvents(ctx, aggregateID, aggregateType, version, []eventstore.Event{event}); err != nil {
		s.logger.Error("failed to append event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// notifySupervisors fans a fire-and-forget event out to a factory's chief
// supervisors. Delivery problems are logged, never surfaced to the caller.
func (s *service) notifySupervisors(ctx context.Context, factoryID uuid.UUID, event notify.Event) {
	supervisors, err := s.workers.ListSupervisors(ctx, factoryID)
	if err != nil {
		s.logger.Warn("failed to resolve supervisors for notification",
			zap.String("factory_id", factoryID.String()), zap.Error(err))
		return
	}
	for _, supervisor := range supervisors {
		event.RecipientID = supervisor.ID
		event.RecipientEmail = supervisor.Email
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("notification failed", zap.String("kind", event.Kind), zap.Error(err))
		}
	}
}

func (s *service) notifyWorker(ctx context.Context, workerID uuid.UUID, event notify.Event) {
	worker, err := s.workers.GetWorker(ctx, workerID)
	if err != nil {
		s.logger.Warn("failed to resolve worker for notification",
			zap.String("worker_id", workerID.String()), zap.Error(err))
		return
	}
	event.RecipientID = worker.ID
	event.RecipientEmail = worker.Email
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification failed", zap.String("kind", event.Kind), zap.Error(err))
	}
}
