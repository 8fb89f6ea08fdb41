// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// NewToolInput carries the caller-supplied fields for a new tool.
type NewToolInput struct {
	Name             string
	CategoryID       uuid.UUID
	Perishability    string
	ExpenseClass     string
	ReorderThreshold int64
}

// UpdateToolInput carries the mutable metadata of a tool.
type UpdateToolInput struct {
	Name             string
	Perishability    string
	ExpenseClass     string
	ReorderThreshold int64
}

// Service defines the interface for the catalog service.
type Service interface {
	CreateCategory(ctx context.Context, name, description string) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
	CreateTool(ctx context.Context, input NewToolInput) (*Tool, error)
	GetTool(ctx context.Context, id uuid.UUID) (*Tool, error)
	GetToolByCode(ctx context.Context, code string) (*Tool, error)
	UpdateToolMetadata(ctx context.Context, id uuid.UUID, input UpdateToolInput) (*Tool, error)
}
