// internal/workforce/domain.go
package workforce

import (
	"time"

	"github.com/google/uuid"
)

// Worker roles. A chief supervisor approves requests and processes returns
// for their factory; a plant head manages stock.
const (
	RoleWorker          = "WORKER"
	RoleChiefSupervisor = "CHIEF_SUPERVISOR"
	RolePlantHead       = "PLANT_HEAD"
)

// Factory is a production site that owns stock and employs workers.
type Factory struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Worker represents an employee. A worker is assigned to at most one
// factory; FactoryID is nil until an assignment is made.
type Worker struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	FactoryID *uuid.UUID `json:"factory_id,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Version   int        `json:"version"`
}

// Credential represents a worker's login credentials.
type Credential struct {
	WorkerID     uuid.UUID `json:"worker_id"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
}

// WorkerRegisteredEvent is published when a new worker registers.
type WorkerRegisteredEvent struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

// FactoryAssignedEvent is published when a worker is assigned to a factory.
type FactoryAssignedEvent struct {
	WorkerID  uuid.UUID `json:"worker_id"`
	FactoryID uuid.UUID `json:"factory_id"`
}
