// internal/inventory/inventory_test.go
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolforge/internal/catalog"
	"toolforge/internal/notify"
	"toolforge/internal/workforce"
	"toolforge/pkg/eventstore"
)

// setupTestDB attempts to connect to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "toolforge"
	}
	if pgPassword == "" {
		pgPassword = "dev_password_change_in_prod"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "toolforge"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	schema, err := os.ReadFile("../../db/init.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

// fixture is one seeded factory with a tool, a worker and a supervisor.
type fixture struct {
	FactoryID    uuid.UUID
	ToolID       uuid.UUID
	WorkerID     uuid.UUID
	SupervisorID uuid.UUID
}

func (f *fixture) worker() Actor {
	return Actor{ID: f.WorkerID, Email: "worker@test.local", Role: workforce.RoleWorker, FactoryID: &f.FactoryID}
}

func (f *fixture) supervisor() Actor {
	return Actor{ID: f.SupervisorID, Email: "supervisor@test.local", Role: workforce.RoleChiefSupervisor, FactoryID: &f.FactoryID}
}

func seedFixture(t testing.TB, db *sql.DB) *fixture {
	t.Helper()

	f := &fixture{
		FactoryID:    uuid.New(),
		ToolID:       uuid.New(),
		WorkerID:     uuid.New(),
		SupervisorID: uuid.New(),
	}
	categoryID := uuid.New()

	// Unique suffixes keep repeated runs from tripping unique constraints.
	suffix := uuid.New().String()[:8]

	_, err := db.Exec(`INSERT INTO tool_categories (id, name) VALUES ($1, $2)`,
		categoryID, "category-"+suffix)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO tools (id, code, name, category_id, reorder_threshold) VALUES ($1, $2, $3, $4, 2)`,
		f.ToolID, "TL-"+suffix, "wrench-"+suffix, categoryID)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO factories (id, code, name) VALUES ($1, $2, $3)`,
		f.FactoryID, "FC-"+suffix, "Plant "+suffix)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO workers (id, email, name, role, factory_id) VALUES ($1, $2, $3, $4, $5)`,
		f.WorkerID, "worker-"+suffix+"@test.local", "Worker", workforce.RoleWorker, f.FactoryID)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO workers (id, email, name, role, factory_id) VALUES ($1, $2, $3, $4, $5)`,
		f.SupervisorID, "supervisor-"+suffix+"@test.local", "Supervisor", workforce.RoleChiefSupervisor, f.FactoryID)
	require.NoError(t, err)

	return f
}

// seedTool registers an additional tool under a fresh category.
func seedTool(t testing.TB, db *sql.DB) uuid.UUID {
	t.Helper()

	toolID := uuid.New()
	categoryID := uuid.New()
	suffix := uuid.New().String()[:8]

	_, err := db.Exec(`INSERT INTO tool_categories (id, name) VALUES ($1, $2)`,
		categoryID, "category-"+suffix)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO tools (id, code, name, category_id) VALUES ($1, $2, $3, $4)`,
		toolID, "TL-"+suffix, "drill-"+suffix, categoryID)
	require.NoError(t, err)

	return toolID
}

func seedStock(t testing.TB, db *sql.DB, factoryID, toolID uuid.UUID, total, available, issued int64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO stock_records (factory_id, tool_id, total_quantity, available_quantity, issued_quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, factoryID, toolID, total, available, issued)
	require.NoError(t, err)
}

func seedIssuance(t testing.TB, db *sql.DB, f *fixture, quantity int64, status string, dueDate time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO issuances (id, factory_id, worker_id, issuer_id, tool_id, quantity, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, f.FactoryID, f.WorkerID, f.SupervisorID, f.ToolID, quantity, status, dueDate)
	require.NoError(t, err)
	return id
}

// stubTools accepts every tool ID. Directory behavior that matters for the
// service under test is covered by the real handlers' integration tests.
type stubTools struct{}

func (stubTools) GetTool(_ context.Context, id uuid.UUID) (*catalog.Tool, error) {
	return &catalog.Tool{ID: id}, nil
}

type stubWorkers struct {
	supervisors []*workforce.Worker
}

func (s *stubWorkers) GetWorker(_ context.Context, id uuid.UUID) (*workforce.Worker, error) {
	return &workforce.Worker{ID: id}, nil
}

func (s *stubWorkers) ListSupervisors(_ context.Context, _ uuid.UUID) ([]*workforce.Worker, error) {
	return s.supervisors, nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) byKind(kind string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, event := range n.events {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

func newTestService(t testing.TB, db *sql.DB, f *fixture) (*service, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	workers := &stubWorkers{}
	if f != nil {
		workers.supervisors = []*workforce.Worker{
			{ID: f.SupervisorID, Email: "supervisor@test.local", Role: workforce.RoleChiefSupervisor},
		}
	}

	svc := NewService(eventstore.NewEventStore(db), db, stubTools{}, workers, notifier, zap.NewNop())
	return svc.(*service), notifier
}

// requireLedgerConsistent asserts the ledger invariant for one record.
func requireLedgerConsistent(t testing.TB, db *sql.DB, factoryID, toolID uuid.UUID) {
	t.Helper()
	var total, available, issued int64
	err := db.QueryRow(`
		SELECT total_quantity, available_quantity, issued_quantity
		FROM stock_records WHERE factory_id = $1 AND tool_id = $2
	`, factoryID, toolID).Scan(&total, &available, &issued)
	require.NoError(t, err)
	require.Equal(t, total, available+issued,
		"total %d != available %d + issued %d", total, available, issued)
	require.GreaterOrEqual(t, available, int64(0))
	require.GreaterOrEqual(t, issued, int64(0))
}
