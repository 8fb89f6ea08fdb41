package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
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

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			aggregate_id UUID NOT NULL,
			aggregate_type TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSONB NOT NULL,
			metadata JSONB,
			version INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, version)
		);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

type TestEvent struct {
	Message string `json:"message"`
}

func TestAppendDetectsVersionConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	eventData, _ := json.Marshal(TestEvent{Message: "first"})
	events := []Event{{EventType: "TestEvent", EventData: eventData}}

	require.NoError(t, store.AppendEvents(context.Background(), aggregateID, "test_aggregate", 0, events))

	// Appending again with the same expected version must conflict.
	err := store.AppendEvents(context.Background(), aggregateID, "test_aggregate", 0, events)
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	version, err := store.GetCurrentVersion(context.Background(), aggregateID)
	require.NoError(t, err)
	require.Equal(t, 1, version)
}

func BenchmarkAppendEvents(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		aggregateID := uuid.New()
		eventData, _ := json.Marshal(TestEvent{Message: fmt.Sprintf("event %d", i)})
		events := []Event{
			{
				EventType: "TestEvent",
				EventData: eventData,
			},
		}
		b.StartTimer()

		err := store.AppendEvents(context.Background(), aggregateID, "test_aggregate", 0, events)
		if err != nil {
			b.Fatalf("AppendEvents failed: %v", err)
		}
	}
}

func BenchmarkLoadEvents(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	for i := 0; i < 10; i++ {
		eventData, _ := json.Marshal(TestEvent{Message: fmt.Sprintf("event %d", i)})
		events := []Event{
			{
				EventType: "TestEvent",
				EventData: eventData,
			},
		}
		if err := store.AppendEvents(context.Background(), aggregateID, "test_aggregate", i, events); err != nil {
			b.Fatalf("setup failed: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.LoadEvents(context.Background(), aggregateID, 0, 0); err != nil {
			b.Fatalf("LoadEvents failed: %v", err)
		}
	}
}
