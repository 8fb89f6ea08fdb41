// internal/workforce/implementation.go
package workforce

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"toolforge/pkg/eventstore"
)

var (
	ErrWorkerNotFound  = errors.New("worker not found")
	ErrFactoryNotFound = errors.New("factory not found")
	ErrInvalidRole     = errors.New("invalid role")
)

// service implements the Service interface.
type service struct {
	eventStore  *eventstore.EventStore
	db          *sql.DB
	rateLimiter *rate.Limiter
}

// NewService creates a new workforce service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore:  es,
		db:          db,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 registrations per minute
	}
}

// RegisterWorker creates a new worker account.
func (s *service) RegisterWorker(ctx context.Context, email, name, role, password string) (*Worker, error) {
	if !s.rateLimiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	switch role {
	case "":
		role = RoleWorker
	case RoleWorker, RoleChiefSupervisor, RolePlantHead:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	id := uuid.New()
	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	eventData := WorkerRegisteredEvent{
		ID:    id,
		Email: email,
		Name:  name,
		Role:  role,
	}
	jsonData, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := eventstore.Event{
		AggregateID:   id,
		AggregateType: "worker",
		EventType:     "WorkerRegistered",
		EventData:     jsonData,
		Version:       1,
	}
	if err := s.eventStore.AppendEvents(ctx, id, "worker", 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	worker := &Worker{
		ID:     id,
		Email:  email,
		Name:   name,
		Role:   role,
		Status: "active",
	}
	credential := &Credential{
		WorkerID:     id,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	if err := s.insertWorkerIntoReadModel(ctx, worker, credential); err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}

	return worker, nil
}

func (s *service) insertWorkerIntoReadModel(ctx context.Context, worker *Worker, credential *Credential) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	workerQuery := `
		INSERT INTO workers (id, email, name, role, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.ExecContext(ctx, workerQuery, worker.ID, worker.Email, worker.Name, worker.Role, worker.Status)
	if err != nil {
		return err
	}

	credQuery := `
		INSERT INTO credentials (worker_id, password_hash, salt)
		VALUES ($1, $2, $3)
	`
	_, err = tx.ExecContext(ctx, credQuery, credential.WorkerID, credential.PasswordHash, credential.Salt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Authenticate verifies a worker's credentials and returns the worker if successful.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Worker, error) {
	worker, err := s.getWorkerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	credential, err := s.getCredentialByWorkerID(ctx, worker.ID)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("authentication failed: invalid credentials")
	}

	return worker, nil
}

func (s *service) getWorkerByEmail(ctx context.Context, email string) (*Worker, error) {
	return s.getWorker(ctx, `WHERE email = $1`, email)
}

func (s *service) getCredentialByWorkerID(ctx context.Context, workerID uuid.UUID) (*Credential, error) {
	query := `
		SELECT worker_id, password_hash, salt
		FROM credentials
		WHERE worker_id = $1
	`
	credential := &Credential{}
	err := s.db.QueryRowContext(ctx, query, workerID).Scan(
		&credential.WorkerID,
		&credential.PasswordHash,
		&credential.Salt,
	)
	if err != nil {
		return nil, err
	}
	return credential, nil
}

// GetWorker retrieves a worker by their ID.
func (s *service) GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error) {
	return s.getWorker(ctx, `WHERE id = $1`, id)
}

func (s *service) getWorker(ctx context.Context, where string, arg interface{}) (*Worker, error) {
	query := `
		SELECT id, email, name, role, factory_id, status, created_at, updated_at
		FROM workers
	` + where
	worker := &Worker{}
	var factoryID sql.Null[uuid.UUID]
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&worker.ID,
		&worker.Email,
		&worker.Name,
		&worker.Role,
		&factoryID,
		&worker.Status,
		&worker.CreatedAt,
		&worker.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("worker %v: %w", arg, ErrWorkerNotFound)
		}
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if factoryID.Valid {
		worker.FactoryID = &factoryID.V
	}

	return worker, nil
}

// CreateFactory registers a new production site.
func (s *service) CreateFactory(ctx context.Context, code, name string) (*Factory, error) {
	factory := &Factory{
		ID:   uuid.New(),
		Code: code,
		Name: name,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO factories (id, code, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, factory.ID, factory.Code, factory.Name).Scan(&factory.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert factory: %w", err)
	}
	return factory, nil
}

// ListFactories returns every registered factory.
func (s *service) ListFactories(ctx context.Context) ([]*Factory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, created_at
		FROM factories
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("query factories: %w", err)
	}
	defer rows.Close()

	var factories []*Factory
	for rows.Next() {
		factory := &Factory{}
		if err := rows.Scan(&factory.ID, &factory.Code, &factory.Name, &factory.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan factory: %w", err)
		}
		factories = append(factories, factory)
	}
	return factories, rows.Err()
}

// AssignFactory places a worker at a factory. A worker holds at most one
// assignment; re-assigning replaces the previous one.
func (s *service) AssignFactory(ctx context.Context, workerID, factoryID uuid.UUID) error {
	worker, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM factories WHERE id = $1)`, factoryID).Scan(&exists); err != nil {
		return fmt.Errorf("check factory: %w", err)
	}
	if !exists {
		return fmt.Errorf("factory %s: %w", factoryID, ErrFactoryNotFound)
	}

	eventData := FactoryAssignedEvent{
		WorkerID:  workerID,
		FactoryID: factoryID,
	}
	jsonData, err := json.Marshal(eventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	version, err := s.eventStore.GetCurrentVersion(ctx, workerID)
	if err != nil {
		return err
	}
	event := eventstore.Event{
		AggregateID:   workerID,
		AggregateType: "worker",
		EventType:     "FactoryAssigned",
		EventData:     jsonData,
		Version:       version + 1,
	}
	if err := s.eventStore.AppendEvents(ctx, workerID, "worker", version, []eventstore.Event{event}); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE workers
		SET factory_id = $1, updated_at = NOW()
		WHERE id = $2
	`, factoryID, worker.ID)
	return err
}

// ListSupervisors returns the chief supervisors assigned to a factory. The
// inventory service fans notifications out to them.
func (s *service) ListSupervisors(ctx context.Context, factoryID uuid.UUID) ([]*Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, role, factory_id, status, created_at, updated_at
		FROM workers
		WHERE factory_id = $1 AND role = $2 AND status = 'active'
		ORDER BY name ASC
	`, factoryID, RoleChiefSupervisor)
	if err != nil {
		return nil, fmt.Errorf("query supervisors: %w", err)
	}
	defer rows.Close()

	var supervisors []*Worker
	for rows.Next() {
		worker := &Worker{}
		var fid sql.Null[uuid.UUID]
		err := rows.Scan(&worker.ID, &worker.Email, &worker.Name, &worker.Role, &fid,
			&worker.Status, &worker.CreatedAt, &worker.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		if fid.Valid {
			worker.FactoryID = &fid.V
		}
		supervisors = append(supervisors, worker)
	}

	return supervisors, rows.Err()
}
