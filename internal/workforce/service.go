// internal/workforce/service.go
package workforce

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the workforce service.
type Service interface {
	RegisterWorker(ctx context.Context, email, name, role, password string) (*Worker, error)
	Authenticate(ctx context.Context, email, password string) (*Worker, error)
	GetWorker(ctx context.Context, id uuid.UUID) (*Worker, error)
	CreateFactory(ctx context.Context, code, name string) (*Factory, error)
	ListFactories(ctx context.Context) ([]*Factory, error)
	AssignFactory(ctx context.Context, workerID, factoryID uuid.UUID) error
	ListSupervisors(ctx context.Context, factoryID uuid.UUID) ([]*Worker, error)
}
