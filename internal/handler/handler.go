package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"climate-rewards-api/internal/database"
	"climate-rewards-api/internal/middleware"
	"climate-rewards-api/internal/models"
	"climate-rewards-api/internal/service"
	"climate-rewards-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// GetPoints handles GET /users/points
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	points, err := h.service.GetBalance(r.Context(), identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.BalanceResponse{Points: points})
}

// GetLedger handles GET /users/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	entries, err := h.service.GetLedger(r.Context(), identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// CreateAccount handles POST /accounts (admin)
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, account)
}

// ListCatalog handles GET /redemption/items
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListCatalog(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if len(items) == 0 {
		h.respondError(w, http.StatusNotFound, "No rewards available")
		return
	}

	h.respondJSON(w, http.StatusOK, items)
}

// Redeem handles POST /redemption/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.RedeemRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	result, err := h.service.Redeem(r.Context(), identity.AccountID, req)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /redemption/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	records, err := h.service.GetHistory(r.Context(), identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if records == nil {
		records = []models.RedemptionRecord{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

// CreateItem handles POST /redemption/items (admin)
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var item models.RewardItem
	if !h.decodeBody(w, r, &item) {
		return
	}

	created, err := h.service.CreateItem(r.Context(), item)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateItem handles PUT /redemption/items/{id} (admin)
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var item models.RewardItem
	if !h.decodeBody(w, r, &item) {
		return
	}
	item.ID = chi.URLParam(r, "id")

	updated, err := h.service.UpdateItem(r.Context(), item)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if events == nil {
		events = []models.Event{}
	}
	h.respondJSON(w, http.StatusOK, events)
}

// CreateEvent handles POST /events (admin)
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var event models.Event
	if !h.decodeBody(w, r, &event) {
		return
	}

	created, err := h.service.CreateEvent(r.Context(), event, identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateEvent handles PUT /events/{id} (admin)
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if !h.decodeBody(w, r, &event) {
		return
	}
	event.ID = chi.URLParam(r, "id")

	updated, err := h.service.UpdateEvent(r.Context(), event)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

// DeleteEvent handles DELETE /events/{id} (admin)
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Event deleted successfully"})
}

// RegisterForEvent handles POST /events/{id}/register
func (h *Handler) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	registration, err := h.service.RegisterForEvent(r.Context(), chi.URLParam(r, "id"), identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Successfully registered for event",
		"registration": registration,
	})
}

// CancelRegistration handles DELETE /events/{id}/register
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.CancelRegistration(r.Context(), chi.URLParam(r, "id"), identity.AccountID); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Registration cancelled successfully"})
}

// MyRegistrations handles GET /events/my-registrations
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	events, err := h.service.GetRegisteredEvents(r.Context(), identity.AccountID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	if events == nil {
		events = []models.RegisteredEvent{}
	}
	h.respondJSON(w, http.StatusOK, events)
}

// GetStats handles GET /admin/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// decodeBody decodes a JSON request body, writing the error response itself
// when decoding fails.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondDomainError maps domain errors to HTTP statuses. Validation and
// insufficient-balance failures keep their messages; anything unmapped is an
// unexpected fault and surfaces as a generic 500.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var validationErr *validation.ValidationError
	var insufficientErr *database.InsufficientPointsError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &insufficientErr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, database.ErrItemNotFound),
		errors.Is(err, database.ErrEventNotFound),
		errors.Is(err, database.ErrRegistrationNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrItemUnavailable),
		errors.Is(err, database.ErrEventFull),
		errors.Is(err, database.ErrEventNotOpen),
		errors.Is(err, database.ErrAlreadyRegistered):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrConflict):
		h.respondError(w, http.StatusServiceUnavailable, database.ErrConflict.Error())
	default:
		log.Printf("Unexpected error: %v", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Message: message})
}
