// internal/catalog/handler.go
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the catalog endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/categories", h.handleCreateCategory)
	r.Get("/categories", h.handleListCategories)
	r.Post("/tools", h.handleCreateTool)
	r.Get("/tools/{id}", h.handleGetTool)
	r.Get("/tools/code/{code}", h.handleGetToolByCode)
	r.Patch("/tools/{id}", h.handleUpdateTool)
	return r
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(category)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(categories)
}

func (h *Handler) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string    `json:"name"`
		CategoryID       uuid.UUID `json:"category_id"`
		Perishability    string    `json:"perishability"`
		ExpenseClass     string    `json:"expense_class"`
		ReorderThreshold int64     `json:"reorder_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	tool, err := h.service.CreateTool(r.Context(), NewToolInput{
		Name:             req.Name,
		CategoryID:       req.CategoryID,
		Perishability:    req.Perishability,
		ExpenseClass:     req.ExpenseClass,
		ReorderThreshold: req.ReorderThreshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tool)
}

func (h *Handler) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid tool ID", http.StatusBadRequest)
		return
	}

	tool, err := h.service.GetTool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(tool)
}

func (h *Handler) handleGetToolByCode(w http.ResponseWriter, r *http.Request) {
	tool, err := h.service.GetToolByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(tool)
}

func (h *Handler) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid tool ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Name             string `json:"name"`
		Perishability    string `json:"perishability"`
		ExpenseClass     string `json:"expense_class"`
		ReorderThreshold int64  `json:"reorder_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tool, err := h.service.UpdateToolMetadata(r.Context(), id, UpdateToolInput{
		Name:             req.Name,
		Perishability:    req.Perishability,
		ExpenseClass:     req.ExpenseClass,
		ReorderThreshold: req.ReorderThreshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(tool)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrCategoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrDuplicateName):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
