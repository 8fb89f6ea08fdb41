// internal/inventory/service.go
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"toolforge/internal/catalog"
	"toolforge/internal/workforce"
)

// ToolDirectory is the read contract the inventory service needs from the
// catalog.
type ToolDirectory interface {
	GetTool(ctx context.Context, id uuid.UUID) (*catalog.Tool, error)
}

// WorkerDirectory is the read contract the inventory service needs from the
// workforce service.
type WorkerDirectory interface {
	GetWorker(ctx context.Context, id uuid.UUID) (*workforce.Worker, error)
	ListSupervisors(ctx context.Context, factoryID uuid.UUID) ([]*workforce.Worker, error)
}

// NewRequestInput carries the caller-supplied fields for a new tool request.
type NewRequestInput struct {
	Nature  string
	Comment string
	Lines   []RequestLine
}

// Service defines the interface for the inventory service: the stock
// ledger, the request workflow, the issuance lifecycle, returns and the
// overdue view.
type Service interface {
	// Ledger.
	AddStock(ctx context.Context, actor Actor, factoryID, toolID uuid.UUID, quantity int64) (*StockRecord, error)
	GetStock(ctx context.Context, factoryID, toolID uuid.UUID) (*StockRecord, error)
	ListFactoryStock(ctx context.Context, factoryID uuid.UUID) ([]*StockRecord, error)

	// Request workflow.
	CreateRequest(ctx context.Context, actor Actor, input NewRequestInput) (*ToolRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*ToolRequest, error)
	ListFactoryRequests(ctx context.Context, factoryID uuid.UUID, status string) ([]*ToolRequest, error)
	ApproveRequest(ctx context.Context, actor Actor, requestID uuid.UUID) ([]*Issuance, error)
	RejectRequest(ctx context.Context, actor Actor, requestID uuid.UUID, comment string) error

	// Issuance lifecycle.
	GetIssuance(ctx context.Context, id uuid.UUID) (*Issuance, error)
	ListWorkerIssuances(ctx context.Context, actor Actor) ([]*Issuance, error)
	RequestExtension(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error)
	ResolveExtension(ctx context.Context, actor Actor, issuanceID uuid.UUID, approved bool) (*Issuance, error)
	InitiateReturn(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error)

	// Returns and confiscation.
	ProcessReturn(ctx context.Context, actor Actor, issuanceID uuid.UUID, fit, unfit int64) (*Issuance, error)
	Confiscate(ctx context.Context, actor Actor, issuanceID uuid.UUID) (*Issuance, error)

	// Overdue view. Pure read, safe to call arbitrarily often.
	ListOverdue(ctx context.Context, factoryID uuid.UUID, asOf time.Time) ([]*Issuance, error)
}
