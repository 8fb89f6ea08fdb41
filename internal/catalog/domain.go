// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Perishability classes. Perishable tools wear out with use and are expected
// to come back partially unfit.
const (
	Perishable    = "PERISHABLE"
	NonPerishable = "NON_PERISHABLE"
)

// Expense classes.
const (
	Expensive   = "EXPENSIVE"
	Inexpensive = "INEXPENSIVE"
)

// Category groups tools for reporting purposes.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tool is a catalog entry. Code and ID are immutable once created; the rest
// of the metadata is mutable. Tools are never deleted, only referenced.
type Tool struct {
	ID               uuid.UUID `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	CategoryID       uuid.UUID `json:"category_id"`
	Perishability    string    `json:"perishability"`
	ExpenseClass     string    `json:"expense_class"`
	ReorderThreshold int64     `json:"reorder_threshold"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToolRegisteredEvent is published when a tool is added to the catalog.
type ToolRegisteredEvent struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	CategoryID    uuid.UUID `json:"category_id"`
	Perishability string    `json:"perishability"`
	ExpenseClass  string    `json:"expense_class"`
}

// ToolMetadataUpdatedEvent is published when mutable tool metadata changes.
type ToolMetadataUpdatedEvent struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Perishability    string    `json:"perishability"`
	ExpenseClass     string    `json:"expense_class"`
	ReorderThreshold int64     `json:"reorder_threshold"`
}
