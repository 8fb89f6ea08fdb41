// internal/workforce/handler.go
package workforce

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

// Routes mounts the workforce endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/workers/register", h.handleRegister)
	r.Post("/workers/authenticate", h.handleAuthenticate)
	r.Get("/workers/{id}", h.handleGetWorker)
	r.Put("/workers/{id}/factory", h.handleAssignFactory)
	r.Post("/factories", h.handleCreateFactory)
	r.Get("/factories", h.handleListFactories)
	r.Get("/factories/{id}/supervisors", h.handleListSupervisors)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	worker, err := h.service.RegisterWorker(r.Context(), req.Email, req.Name, req.Role, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(worker)
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	worker, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	json.NewEncoder(w).Encode(worker)
}

func (h *Handler) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid worker ID", http.StatusBadRequest)
		return
	}

	worker, err := h.service.GetWorker(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(worker)
}

func (h *Handler) handleAssignFactory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid worker ID", http.StatusBadRequest)
		return
	}

	var req struct {
		FactoryID uuid.UUID `json:"factory_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.AssignFactory(r.Context(), id, req.FactoryID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCreateFactory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Name == "" {
		http.Error(w, "code and name are required", http.StatusBadRequest)
		return
	}

	factory, err := h.service.CreateFactory(r.Context(), req.Code, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(factory)
}

func (h *Handler) handleListFactories(w http.ResponseWriter, r *http.Request) {
	factories, err := h.service.ListFactories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(factories)
}

func (h *Handler) handleListSupervisors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid factory ID", http.StatusBadRequest)
		return
	}

	supervisors, err := h.service.ListSupervisors(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(supervisors)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWorkerNotFound), errors.Is(err, ErrFactoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
