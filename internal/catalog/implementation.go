// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"toolforge/pkg/eventstore"
)

var (
	ErrCategoryNotFound = errors.New("tool category not found")
	ErrToolNotFound     = errors.New("tool not found")
	ErrDuplicateName    = errors.New("name already in use")
)

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
}

// NewService creates a new catalog service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
	}
}

// CreateCategory registers a new tool category. Names are unique.
func (s *service) CreateCategory(ctx context.Context, name, description string) (*Category, error) {
	category := &Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}

	query := `
		INSERT INTO tool_categories (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, category.ID, category.Name, category.Description).
		Scan(&category.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("category %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}

	return category, nil
}

// ListCategories returns all categories ordered by name.
func (s *service) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM tool_categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		category := &Category{}
		if err := rows.Scan(&category.ID, &category.Name, &category.Description, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}

	return categories, rows.Err()
}

// CreateTool adds a new tool to the catalog. The human-readable code comes
// from a database sequence consumed inside the insert, so creation is a
// single round trip.
func (s *service) CreateTool(ctx context.Context, input NewToolInput) (*Tool, error) {
	if input.ReorderThreshold < 0 {
		return nil, fmt.Errorf("reorder threshold must be non-negative")
	}
	if input.Perishability == "" {
		input.Perishability = NonPerishable
	}
	if input.ExpenseClass == "" {
		input.ExpenseClass = Inexpensive
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tool_categories WHERE id = $1)`, input.CategoryID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check category: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("category %s: %w", input.CategoryID, ErrCategoryNotFound)
	}

	id := uuid.New()
	tool := &Tool{
		ID:               id,
		Name:             input.Name,
		CategoryID:       input.CategoryID,
		Perishability:    input.Perishability,
		ExpenseClass:     input.ExpenseClass,
		ReorderThreshold: input.ReorderThreshold,
		Version:          1,
	}

	query := `
		INSERT INTO tools (id, code, name, category_id, perishability, expense_class, reorder_threshold, version)
		VALUES ($1, 'TL-' || LPAD(NEXTVAL('tool_codes')::text, 6, '0'), $2, $3, $4, $5, $6, 1)
		RETURNING code, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		tool.ID, tool.Name, tool.CategoryID, tool.Perishability, tool.ExpenseClass, tool.ReorderThreshold).
		Scan(&tool.Code, &tool.CreatedAt, &tool.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("tool %q: %w", input.Name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("insert tool: %w", err)
	}

	eventData := ToolRegisteredEvent{
		ID:            tool.ID,
		Code:          tool.Code,
		Name:          tool.Name,
		CategoryID:    tool.CategoryID,
		Perishability: tool.Perishability,
		ExpenseClass:  tool.ExpenseClass,
	}
	jsonData, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := eventstore.Event{
		AggregateID:   id,
		AggregateType: "tool",
		EventType:     "ToolRegistered",
		EventData:     jsonData,
		Version:       1,
	}
	if err := s.eventStore.AppendEvents(ctx, id, "tool", 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	return tool, nil
}

// GetTool retrieves a tool from the catalog by its ID.
func (s *service) GetTool(ctx context.Context, id uuid.UUID) (*Tool, error) {
	return s.getTool(ctx, `WHERE id = $1`, id)
}

// GetToolByCode retrieves a tool by its human-readable code.
func (s *service) GetToolByCode(ctx context.Context, code string) (*Tool, error) {
	return s.getTool(ctx, `WHERE code = $1`, code)
}

func (s *service) getTool(ctx context.Context, where string, arg interface{}) (*Tool, error) {
	query := `
		SELECT id, code, name, category_id, perishability, expense_class, reorder_threshold, version, created_at, updated_at
		FROM tools
	` + where
	tool := &Tool{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&tool.ID,
		&tool.Code,
		&tool.Name,
		&tool.CategoryID,
		&tool.Perishability,
		&tool.ExpenseClass,
		&tool.ReorderThreshold,
		&tool.Version,
		&tool.CreatedAt,
		&tool.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tool %v: %w", arg, ErrToolNotFound)
		}
		return nil, fmt.Errorf("failed to get tool: %w", err)
	}

	return tool, nil
}

// UpdateToolMetadata updates the mutable fields of a tool. Identity (id and
// code) never changes.
func (s *service) UpdateToolMetadata(ctx context.Context, id uuid.UUID, input UpdateToolInput) (*Tool, error) {
	tool, err := s.GetTool(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name == "" {
		input.Name = tool.Name
	}
	if input.Perishability == "" {
		input.Perishability = tool.Perishability
	}
	if input.ExpenseClass == "" {
		input.ExpenseClass = tool.ExpenseClass
	}
	if input.ReorderThreshold < 0 {
		return nil, fmt.Errorf("reorder threshold must be non-negative")
	}

	eventData := ToolMetadataUpdatedEvent{
		ID:               id,
		Name:             input.Name,
		Perishability:    input.Perishability,
		ExpenseClass:     input.ExpenseClass,
		ReorderThreshold: input.ReorderThreshold,
	}
	jsonData, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := eventstore.Event{
		AggregateID:   id,
		AggregateType: "tool",
		EventType:     "ToolMetadataUpdated",
		EventData:     jsonData,
		Version:       tool.Version + 1,
	}
	if err := s.eventStore.AppendEvents(ctx, id, "tool", tool.Version, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	query := `
		UPDATE tools
		SET name = $1, perishability = $2, expense_class = $3, reorder_threshold = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6
		RETURNING version, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		input.Name, input.Perishability, input.ExpenseClass, input.ReorderThreshold, id, tool.Version).
		Scan(&tool.Version, &tool.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update tool: %w", err)
	}

	tool.Name = input.Name
	tool.Perishability = input.Perishability
	tool.ExpenseClass = input.ExpenseClass
	tool.ReorderThreshold = input.ReorderThreshold
	return tool, nil
}
