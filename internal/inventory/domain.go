// internal/inventory/domain.go
package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Tool request statuses. PENDING is initial; REJECTED and FULFILLED are
// terminal. APPROVED is a logical step inside approval and is never
// persisted: an approval that reserves stock lands directly on FULFILLED.
const (
	RequestPending   = "PENDING"
	RequestApproved  = "APPROVED"
	RequestRejected  = "REJECTED"
	RequestFulfilled = "FULFILLED"
)

// Request natures.
const (
	NatureFresh       = "FRESH"
	NatureReplacement = "REPLACEMENT"
)

// Issuance statuses. RETURNED and CONFISCATED are terminal; the legal
// transitions between the rest live in statemachine.go.
const (
	StatusIssued             = "ISSUED"
	StatusExtensionRequested = "EXTENSION_REQUESTED"
	StatusExtended           = "EXTENDED"
	StatusReturnPending      = "RETURN_PENDING"
	StatusReturned           = "RETURNED"
	StatusConfiscated        = "CONFISCATED"
)

// loanPeriod is the fixed loan window. Extensions add the same amount to the
// previous due date; the source system imposes no cap on how many times.
const loanPeriod = 7 * 24 * time.Hour

// Actor identifies who is performing an operation. The identity itself comes
// from the authorization collaborator; the service still re-checks ownership
// and factory scoping against it.
type Actor struct {
	ID        uuid.UUID
	Email     string
	Role      string
	FactoryID *uuid.UUID
}

// StockRecord is the ledger row for one tool at one factory. Total ==
// Available + Issued holds before and after every mutation; the three
// counters only move through AddStock, Reserve and Release.
type StockRecord struct {
	FactoryID uuid.UUID `json:"factory_id"`
	ToolID    uuid.UUID `json:"tool_id"`
	Total     int64     `json:"total"`
	Available int64     `json:"available"`
	Issued    int64     `json:"issued"`
	UpdatedAt time.Time `json:"updated_at"`

	// BelowThreshold is set on reads when Available has fallen under the
	// tool's reorder threshold.
	BelowThreshold bool `json:"below_threshold,omitempty"`
}

// RequestLine is one tool+quantity item on a request.
type RequestLine struct {
	ToolID   uuid.UUID `json:"tool_id"`
	Quantity int64     `json:"quantity"`
}

// ToolRequest is a worker's ask for tools. Lines are owned by the request.
type ToolRequest struct {
	ID            uuid.UUID     `json:"id"`
	RequestNumber string        `json:"request_number"`
	FactoryID     uuid.UUID     `json:"factory_id"`
	WorkerID      uuid.UUID     `json:"worker_id"`
	Nature        string        `json:"nature"`
	Status        string        `json:"status"`
	Comment       string        `json:"comment,omitempty"`
	ApprovedBy    *uuid.UUID    `json:"approved_by,omitempty"`
	Lines         []RequestLine `json:"lines"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Issuance is one batch of units physically handed to one worker under one
// due date. It reserves a claim against the ledger; the counters themselves
// live only in the StockRecord.
type Issuance struct {
	ID         uuid.UUID  `json:"id"`
	FactoryID  uuid.UUID  `json:"factory_id"`
	RequestID  *uuid.UUID `json:"request_id,omitempty"`
	WorkerID   uuid.UUID  `json:"worker_id"`
	IssuerID   *uuid.UUID `json:"issuer_id,omitempty"`
	ToolID     uuid.UUID  `json:"tool_id"`
	Quantity   int64      `json:"quantity"`
	Status     string     `json:"status"`
	IssuedAt   time.Time  `json:"issued_at"`
	DueDate    time.Time  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// ToolReturn is the append-only audit record of one return (or
// confiscation, where the whole quantity is written off as unfit). At most
// one exists per issuance.
type ToolReturn struct {
	ID          uuid.UUID `json:"id"`
	IssuanceID  uuid.UUID `json:"issuance_id"`
	Fit         int64     `json:"fit_quantity"`
	Unfit       int64     `json:"unfit_quantity"`
	ProcessedBy uuid.UUID `json:"processed_by"`
	ReturnedAt  time.Time `json:"returned_at"`
}

// ToolRequestCreatedEvent is published when a worker files a request.
type ToolRequestCreatedEvent struct {
	RequestID     uuid.UUID     `json:"request_id"`
	RequestNumber string        `json:"request_number"`
	FactoryID     uuid.UUID     `json:"factory_id"`
	WorkerID      uuid.UUID     `json:"worker_id"`
	Lines         []RequestLine `json:"lines"`
}

// ToolRequestRejectedEvent is published when a supervisor rejects a request.
type ToolRequestRejectedEvent struct {
	RequestID uuid.UUID `json:"request_id"`
	Comment   string    `json:"comment"`
}

// ToolRequestFulfilledEvent is published when an approval reserves stock and
// issues the tools.
type ToolRequestFulfilledEvent struct {
	RequestID   uuid.UUID   `json:"request_id"`
	ApprovedBy  uuid.UUID   `json:"approved_by"`
	IssuanceIDs []uuid.UUID `json:"issuance_ids"`
}

// IssuanceStatusChangedEvent is published on every issuance transition.
type IssuanceStatusChangedEvent struct {
	IssuanceID uuid.UUID  `json:"issuance_id"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// ToolsReturnedEvent is published when a return or confiscation reconciles
// the ledger.
type ToolsReturnedEvent struct {
	IssuanceID  uuid.UUID `json:"issuance_id"`
	Fit         int64     `json:"fit_quantity"`
	Unfit       int64     `json:"unfit_quantity"`
	ProcessedBy uuid.UUID `json:"processed_by"`
	Confiscated bool      `json:"confiscated"`
}
