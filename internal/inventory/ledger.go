// internal/inventory/ledger.go
package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// querier is satisfied by *sql.DB and *sql.Tx, so reserve and release can
// run standalone or inside the approval/return transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// AddStock creates the ledger record on first stock addition and increments
// total and available otherwise. A single upsert keeps concurrent restocks
// for the same key from losing increments.
func (s *service) AddStock(ctx context.Context, actor Actor, factoryID, toolID uuid.UUID, quantity int64) (*StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.add_stock",
		trace.WithAttributes(
			attribute.String("factory.id", factoryID.String()),
			attribute.String("tool.id", toolID.String()),
			attribute.Int64("quantity", quantity),
		),
	)
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("add stock: %w", ErrInvalidQuantity)
	}
	if actor.FactoryID == nil || *actor.FactoryID != factoryID {
		return nil, fmt.Errorf("add stock to factory %s: %w", factoryID, ErrOwnershipViolation)
	}

	// The tool must exist in the catalog before stock can be held for it.
	if _, err := s.tools.GetTool(ctx, toolID); err != nil {
		return nil, fmt.Errorf("tool %s: %w", toolID, ErrToolNotFound)
	}

	record := &StockRecord{FactoryID: factoryID, ToolID: toolID}
	query := `
		INSERT INTO stock_records (factory_id, tool_id, total_quantity, available_quantity, issued_quantity)
		VALUES ($1, $2, $3, $3, 0)
		ON CONFLICT (factory_id, tool_id) DO UPDATE
		SET total_quantity = stock_records.total_quantity + EXCLUDED.total_quantity,
		    available_quantity = stock_records.available_quantity + EXCLUDED.available_quantity,
		    updated_at = NOW()
		RETURNING total_quantity, available_quantity, issued_quantity, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, factoryID, toolID, quantity).
		Scan(&record.Total, &record.Available, &record.Issued, &record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert stock: %w", err)
	}

	span.SetAttributes(attribute.Int64("stock.available", record.Available))
	return record, nil
}

// reserve atomically moves quantity units from available to issued. The
// guard is inside the UPDATE itself: two overlapping reservations for the
// same key serialize on the row lock and the loser sees the decremented
// counter, so available can never go negative.
func (s *service) reserve(ctx context.Context, q querier, factoryID, toolID uuid.UUID, quantity int64) error {
	ctx, span := s.tracer.Start(ctx, "ledger.reserve",
		trace.WithAttributes(
			attribute.String("factory.id", factoryID.String()),
			attribute.String("tool.id", toolID.String()),
			attribute.Int64("quantity", quantity),
		),
	)
	defer span.End()

	if quantity <= 0 {
		return fmt.Errorf("reserve: %w", ErrInvalidQuantity)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE stock_records
		SET available_quantity = available_quantity - $3,
		    issued_quantity = issued_quantity + $3,
		    updated_at = NOW()
		WHERE factory_id = $1 AND tool_id = $2 AND available_quantity >= $3
	`, factoryID, toolID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM stock_records WHERE factory_id = $1 AND tool_id = $2)
		`, factoryID, toolID).Scan(&exists); err != nil {
			return fmt.Errorf("check stock record: %w", err)
		}
		if !exists {
			return fmt.Errorf("reserve %s/%s: %w", factoryID, toolID, ErrStockNotFound)
		}
		span.SetAttributes(attribute.Bool("reserve.insufficient", true))
		return fmt.Errorf("reserve %d of tool %s: %w", quantity, toolID, ErrInsufficientStock)
	}

	return nil
}

// release reconciles a closed issuance with the ledger: issued drops by the
// whole batch, fit units go back to available and unfit units leave the
// system entirely (total drops). A missing or inconsistent record here means
// an upstream bug, because the reservation that opened the batch must have
// created it.
func (s *service) release(ctx context.Context, q querier, factoryID, toolID uuid.UUID, fit, unfit int64) error {
	ctx, span := s.tracer.Start(ctx, "ledger.release",
		trace.WithAttributes(
			attribute.String("factory.id", factoryID.String()),
			attribute.String("tool.id", toolID.String()),
			attribute.Int64("fit", fit),
			attribute.Int64("unfit", unfit),
		),
	)
	defer span.End()

	res, err := q.ExecContext(ctx, `
		UPDATE stock_records
		SET issued_quantity = issued_quantity - ($3 + $4),
		    available_quantity = available_quantity + $3,
		    total_quantity = total_quantity - $4,
		    updated_at = NOW()
		WHERE factory_id = $1 AND tool_id = $2 AND issued_quantity >= $3 + $4
	`, factoryID, toolID, fit, unfit)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if affected == 0 {
		s.logger.Error("data-integrity alert: release hit a missing or inconsistent stock record",
			zap.String("factory_id", factoryID.String()),
			zap.String("tool_id", toolID.String()),
			zap.Int64("fit", fit),
			zap.Int64("unfit", unfit),
		)
		return fmt.Errorf("release %s/%s: %w", factoryID, toolID, ErrStockNotFound)
	}

	return nil
}

// GetStock returns the ledger record for one (factory, tool) key.
func (s *service) GetStock(ctx context.Context, factoryID, toolID uuid.UUID) (*StockRecord, error) {
	record := &StockRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT factory_id, tool_id, total_quantity, available_quantity, issued_quantity, updated_at
		FROM stock_records
		WHERE factory_id = $1 AND tool_id = $2
	`, factoryID, toolID).Scan(
		&record.FactoryID, &record.ToolID, &record.Total, &record.Available, &record.Issued, &record.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("stock %s/%s: %w", factoryID, toolID, ErrStockNotFound)
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return record, nil
}

// ListFactoryStock returns all ledger records at a factory, flagging records
// whose availability has fallen under the tool's reorder threshold.
func (s *service) ListFactoryStock(ctx context.Context, factoryID uuid.UUID) ([]*StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.factory_id, sr.tool_id, sr.total_quantity, sr.available_quantity, sr.issued_quantity,
		       sr.updated_at, sr.available_quantity < t.reorder_threshold AS below_threshold
		FROM stock_records sr
		JOIN tools t ON t.id = sr.tool_id
		WHERE sr.factory_id = $1
		ORDER BY t.name ASC
	`, factoryID)
	if err != nil {
		return nil, fmt.Errorf("query factory stock: %w", err)
	}
	defer rows.Close()

	var records []*StockRecord
	for rows.Next() {
		record := &StockRecord{}
		err := rows.Scan(&record.FactoryID, &record.ToolID, &record.Total, &record.Available,
			&record.Issued, &record.UpdatedAt, &record.BelowThreshold)
		if err != nil {
			return nil, fmt.Errorf("scan stock record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
