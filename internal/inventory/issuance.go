// internal/inventory/issuance.go
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolforge/internal/notify"
)

// GetIssuance retrieves one issuance by ID.
func (s *service) GetIssuance(ctx context.Context, id uuid.UUID) (*Issuance, error) {
	return s.getIssuance(ctx, s.db, id, false)
}

func (s *service) getIssuance(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Issuance, error) {
	query := `
		SELECT id, factory_id, request_id, worker_id, issuer_id, tool_id, quantity, status, issued_at, due_date, returned_at
		FROM issuances
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	issuance := &Issuance{}
	var requestID, issuerID sql.Null[uuid.UUID]
	var returnedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, id).Scan(
		&issuance.ID, &issuance.FactoryID, &requestID, &issuance.WorkerID, &issuerID,
		&issuance.ToolID, &issuance.Quantity, &issuance.Status, &issuance.IssuedAt,
		&issuance.DueDate, &returnedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("issuance %s: %w", id, ErrIssuanceNotFound)
		}
		return nil, fmt.Errorf("get issuance: %w", err)
	}
	if requestID.Valid {
		issuance.RequestID = &requestID.V
	}
	if issuerID.Valid {
		issuance.IssuerID = &issuerID.V
	}
	if returnedAt.Valid {
		issuance.ReturnedAt = &returnedAt.Time
	}
	return issuance, nil
}

// ListWorkerIssuances returns the acting worker's open issuances ordered by
// due date, soonest first.
func (s *service) ListWorkerIssuances(ctx context.Context, actor Actor) ([]*Issuance, error) {
	return s.queryIssuances(ctx, `
		WHERE worker_id = $1 AND status IN ($2, $3, $4, $5)
		ORDER BY due_date ASC
	`, actor.ID, StatusIssued, StatusExtended, StatusExtensionRequested, StatusReturnPending)
}

// ListOverdue returns the factory's active issuances whose due date has
// passed as of the given instant, oldest debt first. Pure read.
func (s *service) ListOverdue(ctx context.Context, factoryID uuid.UUID, asOf time.Time) ([]*Issuance, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return s.queryIssuances(ctx, `
		WHERE factory_id = $1 AND status IN ($2, $3) AND due_date < $4
		ORDER BY due_date ASC
	`, factoryID, StatusIssued, StatusExtended, asOf)
}

func (s *service) queryIssuances(ctx context.Context, clause string, args ...interface{}) ([]*Issuance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, factory_id, request_id, worker_id, issuer_id, tool_id, quantity, status, issued_at, due_date, returned_at
		FROM issuances
	`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query issuances: %w", err)
	}
	defer rows.Close()

	var issuances []*Issuance
	for rows.Next() {
		issuance := &Issuance{}
		var requestID, issuerID sql.Null[uuid.UUID]
		var returnedAt sql.NullTime
		err := rows.Scan(
			&issuance.ID, &issuance.FactoryID, &requestID, &issuance.WorkerID, &issuerID,
			&issuance.ToolID, &issuance.Quantity, &issuance.Status, &issuance.IssuedAt,
			&issuance.DueDate, &returnedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan issuance: %w", err)
		}
		if requestID.Valid {
			issuance.RequestID = &requestID.V
		}
		if issuerID.Valid {
			issuance.IssuerID = &issuerID.V
		}
		if returnedAt.Valid {
			issuance.ReturnedAt = &returnedAt.Time
		}
		issuances = append(issuances, issuance)
	}
	return issuances, rows.Err()
}

// RequestExtension moves a worker's issuance to EXTENSION_REQUESTED. Only
// the issuance's worker may ask, and not once the tool is overdue.
func (s *service) RequestExtension(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error) {
	return s.transition(ctx, issuanceID, eventRequestExtension, func(issuance *Issuance) error {
		if issuance.WorkerID != actor.ID {
			return fmt.Errorf("request extension: %w", ErrOwnershipViolation)
		}
		if !issuance.DueDate.After(time.Now().UTC()) {
			return fmt.Errorf("request extension: %w", ErrExtensionWhenOverdue)
		}
		return nil
	}, nil)
}

// ResolveExtension lets a supervisor approve or deny a pending extension
// request. Approval pushes the due date out by exactly one loan period from
// its previous value; denial puts the issuance back to ISSUED.
func (s *service) ResolveExtension(ctx context.Context, actor Actor, issuanceID uuid.UUID, approved bool) (*Issuance, error) {
	event := eventApproveExtension
	outcome := "approved"
	if !approved {
		event = eventDenyExtension
		outcome = "denied"
	}

	var workerID uuid.UUID
	issuance, err := s.transition(ctx, issuanceID, event, func(issuance *Issuance) error {
		if actor.FactoryID == nil || *actor.FactoryID != issuance.FactoryID {
			return fmt.Errorf("resolve extension: %w", ErrOwnershipViolation)
		}
		workerID = issuance.WorkerID
		return nil
	}, func(ctx context.Context, tx *sql.Tx, issuance *Issuance) error {
		if !approved {
			return nil
		}
		issuance.DueDate = issuance.DueDate.Add(loanPeriod)
		_, err := tx.ExecContext(ctx, `
			UPDATE issuances SET due_date = $1 WHERE id = $2
		`, issuance.DueDate, issuance.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyWorker(ctx, workerID, notify.Event{
		Kind:       notify.KindExtensionDecided,
		IssuanceID: issuanceID,
		Outcome:    outcome,
	})
	return issuance, nil
}

// InitiateReturn lets the issuance's worker flag the batch as handed back,
// pending the supervisor's reconciliation.
func (s *service) InitiateReturn(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error) {
	return s.transition(ctx, issuanceID, eventInitiateReturn, func(issuance *Issuance) error {
		if issuance.WorkerID != actor.ID {
			return fmt.Errorf("initiate return: %w", ErrOwnershipViolation)
		}
		return nil
	}, nil)
}

// ProcessReturn reconciles a returned batch: the fit units go back to
// available stock, the unfit units are scrapped out of the system, the
// append-only audit row is written and the issuance closes as RETURNED. All
// of it in one transaction.
func (s *service) ProcessReturn(ctx context.Context, actor Actor, issuanceID uuid.UUID, fit, unfit int64) (*Issuance, error) {
	return s.closeIssuance(ctx, actor, issuanceID, fit, unfit, false)
}

// Confiscate seizes an overdue batch: the whole quantity is written off as
// unfit and the issuance closes as CONFISCATED, distinguishing "lost or
// seized" from "returned damaged" in reporting.
func (s *service) Confiscate(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error) {
	return s.closeIssuance(ctx, actor, issuanceID, 0, -1, true)
}

func (s *service) closeIssuance(ctx context.Context, actor Actor, issuanceID uuid.UUID, fit, unfit int64, confiscate bool) (*Issuance, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.close")
	defer span.End()

	event := eventProcessReturn
	terminal := StatusReturned
	if confiscate {
		event = eventConfiscate
		terminal = StatusConfiscated
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	issuance, err := s.getIssuance(ctx, tx, issuanceID, true)
	if err != nil {
		return nil, err
	}

	if _, err := nextStatus(issuance.Status, event); err != nil {
		return nil, err
	}
	if actor.FactoryID == nil || *actor.FactoryID != issuance.FactoryID {
		return nil, fmt.Errorf("close issuance: %w", ErrOwnershipViolation)
	}

	now := time.Now().UTC()
	if confiscate {
		if issuance.DueDate.After(now) {
			return nil, fmt.Errorf("confiscate issuance %s: %w", issuanceID, ErrNotYetOverdue)
		}
		fit, unfit = 0, issuance.Quantity
	}
	if fit < 0 || unfit < 0 || fit+unfit != issuance.Quantity {
		return nil, fmt.Errorf("fit %d + unfit %d != issued %d: %w", fit, unfit, issuance.Quantity, ErrQuantityMismatch)
	}

	if err := s.release(ctx, tx, issuance.FactoryID, issuance.ToolID, fit, unfit); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tool_returns (id, issuance_id, fit_quantity, unfit_quantity, processed_by, returned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), issuance.ID, fit, unfit, actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("insert return record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE issuances SET status = $1, returned_at = $2 WHERE id = $3
	`, terminal, now, issuance.ID)
	if err != nil {
		return nil, fmt.Errorf("update issuance status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return: %w", err)
	}

	from := issuance.Status
	issuance.Status = terminal
	issuance.ReturnedAt = &now

	s.appendEvent(ctx, issuance.ID, "issuance", "ToolsReturned", ToolsReturnedEvent{
		IssuanceID:  issuance.ID,
		Fit:         fit,
		Unfit:       unfit,
		ProcessedBy: actor.ID,
		Confiscated: confiscate,
	})
	s.appendEvent(ctx, issuance.ID, "issuance", "IssuanceStatusChanged", IssuanceStatusChangedEvent{
		IssuanceID: issuance.ID,
		From:       from,
		To:         terminal,
	})

	return issuance, nil
}

// transition applies a guarded state-machine event to an issuance inside a
// transaction. guard runs against the locked row before the move; extra, if
// present, runs after the status update for transitions with side effects
// on the row itself.
func (s *service) transition(
	ctx context.Context,
	issuanceID uuid.UUID,
	event transitionEvent,
	guard func(*Issuance) error,
	extra func(context.Context, *sql.Tx, *Issuance) error,
) (*Issuance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	issuance, err := s.getIssuance(ctx, tx, issuanceID, true)
	if err != nil {
		return nil, err
	}

	to, err := nextStatus(issuance.Status, event)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(issuance); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE issuances SET status = $1 WHERE id = $2
	`, to, issuance.ID)
	if err != nil {
		return nil, fmt.Errorf("update issuance status: %w", err)
	}

	from := issuance.Status
	issuance.Status = to
	if extra != nil {
		if err := extra(ctx, tx, issuance); err != nil {
			return nil, fmt.Errorf("apply transition side effect: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	s.appendEvent(ctx, issuance.ID, "issuance", "IssuanceStatusChanged", IssuanceStatusChangedEvent{
		IssuanceID: issuance.ID,
		From:       from,
		To:         to,
		DueDate:    &issuance.DueDate,
	})

	return issuance, nil
}
