// pkg/chaos/experiments.go
package chaos

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// RegisterExperiments registers the predefined experiment suite.
func (e *Engine) RegisterExperiments() {
	e.Register(e.LedgerConsistencyUnderConcurrentApprovals())
	e.Register(e.DatabaseLatencyExperiment(250 * time.Millisecond))
	e.Register(e.ConnectionPoolExhaustionExperiment())
	e.Register(e.OverdueSweepIdempotenceExperiment())
}

// LedgerConsistencyUnderConcurrentApprovals hammers one stock record with
// concurrent reservations and checks the ledger invariant never breaks.
func (e *Engine) LedgerConsistencyUnderConcurrentApprovals() Experiment {
	consistencyQuery := func(ctx context.Context) (float64, error) {
		var inconsistencies int
		err := e.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM stock_records
			WHERE available_quantity < 0
			   OR issued_quantity < 0
			   OR total_quantity != available_quantity + issued_quantity
		`).Scan(&inconsistencies)
		return float64(inconsistencies), err
	}

	return Experiment{
		Name:       "concurrent-approval-race",
		Hypothesis: "Concurrent approvals against the same stock record never oversell or corrupt the ledger",
		SteadyState: []Metric{
			{
				Name:      "ledger_consistency",
				Query:     consistencyQuery,
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-reservations",
				Target: "inventory-service",
				Parameters: map[string]interface{}{
					"concurrency": 100,
				},
				Execute: func(ctx context.Context) error {
					var wg sync.WaitGroup
					for i := 0; i < 100; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							// Each attempt is a conditional UPDATE; most are
							// expected to find no available stock and affect
							// zero rows.
							_, _ = e.db.ExecContext(ctx, `
								UPDATE stock_records
								SET available_quantity = available_quantity - 1,
								    issued_quantity = issued_quantity + 1
								WHERE available_quantity >= 1
								  AND (factory_id, tool_id) = (
								      SELECT factory_id, tool_id FROM stock_records LIMIT 1
								  )
							`)
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Rollback: []Action{},
		Validation: []Assertion{
			{
				Metric:    "ledger_consistency",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "total must equal available plus issued on every record",
			},
		},
		Duration:    30 * time.Second,
		BlastRadius: 0.1,
	}
}

// DatabaseLatencyExperiment injects latency into database operations and
// checks that request handling degrades without corrupting state.
func (e *Engine) DatabaseLatencyExperiment(targetLatency time.Duration) Experiment {
	return Experiment{
		Name:       "database-latency-injection",
		Hypothesis: "Approval throughput degrades gracefully under database latency",
		SteadyState: []Metric{
			{
				Name: "fulfillment_rate",
				Query: func(ctx context.Context) (float64, error) {
					var rate float64
					err := e.db.QueryRowContext(ctx, `
						SELECT COALESCE(
							COUNT(*) FILTER (WHERE status = 'FULFILLED')::float
								/ NULLIF(COUNT(*) FILTER (WHERE status != 'PENDING')::float, 0) * 100,
							100.0
						) FROM tool_requests WHERE updated_at > NOW() - INTERVAL '1 minute'
					`).Scan(&rate)
					return rate, err
				},
				Threshold: Threshold{Operator: ">", Value: 50.0},
			},
		},
		Method: []Action{
			{
				Type:   "inject-latency",
				Target: "postgres-primary",
				Parameters: map[string]interface{}{
					"latency": targetLatency,
					"jitter":  50 * time.Millisecond,
				},
				Execute: func(ctx context.Context) error {
					// In production this uses a proxy or network policy.
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-latency",
				Target: "postgres-primary",
				Execute: func(ctx context.Context) error {
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "fulfillment_rate",
				Condition: func(v float64) bool { return v > 50.0 },
				Message:   "fulfillment rate should stay above 50% under latency",
			},
		},
		Duration:    2 * time.Minute,
		BlastRadius: 1.0,
	}
}

// ConnectionPoolExhaustionExperiment holds connections open and checks the
// service keeps serving within its error budget.
func (e *Engine) ConnectionPoolExhaustionExperiment() Experiment {
	return Experiment{
		Name:       "database-connection-pool-exhaustion",
		Hypothesis: "Stock reads keep succeeding while the connection pool is under pressure",
		SteadyState: []Metric{
			{
				Name: "stock_read_success",
				Query: func(ctx context.Context) (float64, error) {
					var n int
					if err := e.db.QueryRowContext(ctx,
						`SELECT COUNT(*) FROM stock_records`).Scan(&n); err != nil {
						return 0.0, nil
					}
					return 100.0, nil
				},
				Threshold: Threshold{Operator: ">", Value: 0.0},
			},
		},
		Method: []Action{
			{
				Type:   "exhaust-connections",
				Target: "postgres-connection-pool",
				Execute: func(ctx context.Context) error {
					conns := make([]*sql.Conn, 0)
					for i := 0; i < 100; i++ {
						conn, err := e.db.Conn(ctx)
						if err != nil {
							break
						}
						conns = append(conns, conn)
					}
					time.Sleep(30 * time.Second)
					for _, conn := range conns {
						conn.Close()
					}
					return nil
				},
			},
		},
		Rollback: []Action{},
		Validation: []Assertion{
			{
				Metric:    "stock_read_success",
				Condition: func(v float64) bool { return v > 0.0 },
				Message:   "reads should recover once connections are released",
			},
		},
		Duration:    2 * time.Minute,
		BlastRadius: 1.0,
	}
}

// OverdueSweepIdempotenceExperiment verifies the sweep is a pure read:
// running it repeatedly must not change any issuance status.
func (e *Engine) OverdueSweepIdempotenceExperiment() Experiment {
	statusChecksum := func(ctx context.Context) (float64, error) {
		var n float64
		err := e.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(LENGTH(status)), 0) FROM issuances
			WHERE status IN ('ISSUED', 'EXTENDED')
		`).Scan(&n)
		return n, err
	}

	var baseline float64
	return Experiment{
		Name:       "overdue-sweep-idempotence",
		Hypothesis: "Repeated overdue sweeps leave issuance statuses untouched",
		SteadyState: []Metric{
			{
				Name:      "active_status_checksum",
				Query:     statusChecksum,
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "record-baseline",
				Target: "issuances",
				Execute: func(ctx context.Context) error {
					var err error
					baseline, err = statusChecksum(ctx)
					return err
				},
			},
			{
				Type:   "repeated-sweeps",
				Target: "inventory-service",
				Parameters: map[string]interface{}{
					"runs": 10,
				},
				Execute: func(ctx context.Context) error {
					for i := 0; i < 10; i++ {
						rows, err := e.db.QueryContext(ctx, `
							SELECT id FROM issuances
							WHERE status IN ('ISSUED', 'EXTENDED') AND due_date < NOW()
							ORDER BY due_date ASC
						`)
						if err != nil {
							return err
						}
						rows.Close()
					}
					return nil
				},
			},
		},
		Rollback: []Action{},
		Validation: []Assertion{
			{
				Metric:    "active_status_checksum",
				Condition: func(v float64) bool { return v == baseline },
				Message:   "sweep must not flip any issuance status",
			},
		},
		Duration:    15 * time.Second,
		BlastRadius: 0.0,
	}
}
