// internal/inventory/handler.go
package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
	workers WorkerDirectory
}

func NewHandler(service Service, workers WorkerDirectory) *Handler {
	return &Handler{service: service, workers: workers}
}

// Routes mounts the inventory endpoints on a chi router. Every mutating
// endpoint resolves the acting worker from the X-Worker-ID header through
// the workforce service; the service layer re-checks ownership and factory
// scope against the resolved actor.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/factories/{factoryID}/stock", h.handleAddStock)
	r.Get("/factories/{factoryID}/stock", h.handleListFactoryStock)
	r.Get("/factories/{factoryID}/stock/{toolID}", h.handleGetStock)

	r.Post("/requests", h.handleCreateRequest)
	r.Get("/requests/{id}", h.handleGetRequest)
	r.Get("/factories/{factoryID}/requests", h.handleListFactoryRequests)
	r.Post("/requests/{id}/approve", h.handleApproveRequest)
	r.Post("/requests/{id}/reject", h.handleRejectRequest)

	r.Get("/issuances/{id}", h.handleGetIssuance)
	r.Get("/issuances", h.handleListWorkerIssuances)
	r.Post("/issuances/{id}/extension", h.handleRequestExtension)
	r.Post("/issuances/{id}/extension/decision", h.handleResolveExtension)
	r.Post("/issuances/{id}/return", h.handleInitiateReturn)
	r.Post("/issuances/{id}/return/process", h.handleProcessReturn)
	r.Post("/issuances/{id}/confiscate", h.handleConfiscate)

	r.Get("/factories/{factoryID}/overdue", h.handleListOverdue)

	return r
}

// actor resolves the acting worker from the X-Worker-ID header.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	raw := r.Header.Get("X-Worker-ID")
	if raw == "" {
		http.Error(w, "X-Worker-ID header is required", http.StatusUnauthorized)
		return Actor{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid X-Worker-ID header", http.StatusUnauthorized)
		return Actor{}, false
	}

	worker, err := h.workers.GetWorker(r.Context(), id)
	if err != nil {
		http.Error(w, "unknown worker", http.StatusUnauthorized)
		return Actor{}, false
	}
	return Actor{
		ID:        worker.ID,
		Email:     worker.Email,
		Role:      worker.Role,
		FactoryID: worker.FactoryID,
	}, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	factoryID, ok := pathUUID(w, r, "factoryID")
	if !ok {
		return
	}

	var req struct {
		ToolID   uuid.UUID `json:"tool_id"`
		Quantity int64     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.service.AddStock(r.Context(), actor, factoryID, req.ToolID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleListFactoryStock(w http.ResponseWriter, r *http.Request) {
	factoryID, ok := pathUUID(w, r, "factoryID")
	if !ok {
		return
	}
	records, err := h.service.ListFactoryStock(r.Context(), factoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(records)
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	factoryID, ok := pathUUID(w, r, "factoryID")
	if !ok {
		return
	}
	toolID, ok := pathUUID(w, r, "toolID")
	if !ok {
		return
	}
	record, err := h.service.GetStock(r.Context(), factoryID, toolID)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(record)
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Nature  string        `json:"nature"`
		Comment string        `json:"comment"`
		Lines   []RequestLine `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := h.service.CreateRequest(r.Context(), actor, NewRequestInput{
		Nature:  req.Nature,
		Comment: req.Comment,
		Lines:   req.Lines,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	request, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(request)
}

func (h *Handler) handleListFactoryRequests(w http.ResponseWriter, r *http.Request) {
	factoryID, ok := pathUUID(w, r, "factoryID")
	if !ok {
		return
	}
	requests, err := h.service.ListFactoryRequests(r.Context(), factoryID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(requests)
}

func (h *Handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	issuances, err := h.service.ApproveRequest(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuances)
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.RejectRequest(r.Context(), actor, id, req.Comment); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetIssuance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	issuance, err := h.service.GetIssuance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleListWorkerIssuances(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	issuances, err := h.service.ListWorkerIssuances(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuances)
}

func (h *Handler) handleRequestExtension(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	issuance, err := h.service.RequestExtension(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleResolveExtension(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issuance, err := h.service.ResolveExtension(r.Context(), actor, id, req.Approved)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleInitiateReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	issuance, err := h.service.InitiateReturn(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleProcessReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Fit   int64 `json:"fit_quantity"`
		Unfit int64 `json:"unfit_quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issuance, err := h.service.ProcessReturn(r.Context(), actor, id, req.Fit, req.Unfit)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleConfiscate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	issuance, err := h.service.Confiscate(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuance)
}

func (h *Handler) handleListOverdue(w http.ResponseWriter, r *http.Request) {
	factoryID, ok := pathUUID(w, r, "factoryID")
	if !ok {
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid as_of timestamp", http.StatusBadRequest)
			return
		}
		asOf = parsed
	}

	issuances, err := h.service.ListOverdue(r.Context(), factoryID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(issuances)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrToolNotFound),
		errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrIssuanceNotFound),
		errors.Is(err, ErrFactoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrOwnershipViolation):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrInvalidIssuanceState),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrExtensionWhenOverdue),
		errors.Is(err, ErrNotYetOverdue):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrQuantityMismatch),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrNoFactoryAssignment):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
