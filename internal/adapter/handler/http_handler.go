package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/auth"
	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/core/service"
	"github.com/rl1809/event-inventory/internal/port"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	store        port.Store
	events       *service.EventService
	reservations *service.ReservationService
	reconciler   *service.Reconciler
	guard        port.SubmissionGuard
	auth         *auth.Authenticator
	logger       *zap.Logger
	now          func() time.Time
}

func NewHTTPHandler(
	store port.Store,
	events *service.EventService,
	reservations *service.ReservationService,
	reconciler *service.Reconciler,
	guard port.SubmissionGuard,
	authenticator *auth.Authenticator,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		store:        store,
		events:       events,
		reservations: reservations,
		reconciler:   reconciler,
		guard:        guard,
		auth:         authenticator,
		logger:       logger,
		now:          time.Now,
	}
}

// Routes registers every endpoint. Everything under /api requires a staff
// bearer token.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.Handle("GET /api/me", h.authenticated(h.Profile))
	mux.Handle("GET /api/inventory", h.authenticated(h.ListInventory))
	mux.Handle("GET /api/events", h.authenticated(h.ListEvents))
	mux.Handle("POST /api/events", h.authenticated(h.CreateEvent))
	mux.Handle("GET /api/events/{id}", h.authenticated(h.GetEvent))
	mux.Handle("PUT /api/events/{id}", h.authenticated(h.UpdateEvent))
	mux.Handle("DELETE /api/events/{id}", h.authenticated(h.DeleteEvent))
	mux.Handle("POST /api/events/{id}/inventory", h.authenticated(h.ReserveInventory))
	mux.Handle("DELETE /api/events/{id}/inventory", h.authenticated(h.ReleaseInventory))
	mux.Handle("GET /api/movements", h.authenticated(h.ListMovements))
	mux.Handle("GET /api/map", h.authenticated(h.MapPoints))
	mux.Handle("GET /api/calendar.ics", h.authenticated(h.Calendar))
	mux.Handle("GET /api/reconciliation", h.authenticated(h.Reconcile))

	return h.logRequests(mux)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Profile(w http.ResponseWriter, r *http.Request) {
	staff, ok := auth.StaffFromContext(r.Context())
	if !ok {
		h.writeError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, StaffResponse{UID: staff.UID, Name: staff.Name, Email: staff.Email})
}

func (h *HTTPHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponses(items))
}

func (h *HTTPHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, newEventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	staff, _ := auth.StaffFromContext(r.Context())
	event, err := h.events.Create(r.Context(), staff.UID, req.toDetails())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventResponse(event))
}

func (h *HTTPHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventResponse(event))
}

func (h *HTTPHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	event, err := h.events.Update(r.Context(), r.PathValue("id"), req.toDetails())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventResponse(event))
}

func (h *HTTPHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	release, err := h.acquireSubmission(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	if err := h.events.Delete(r.Context(), eventID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ReserveInventory(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	var req ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	release, err := h.acquireSubmission(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	result, err := h.reservations.Reserve(r.Context(), eventID, req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReserveResponse{
		Assignments: newAssignmentDTOs(result.Assignments),
		Items:       newItemResponses(result.Items),
	})
}

func (h *HTTPHandler) ReleaseInventory(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")
	release, err := h.acquireSubmission(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer release()

	result, err := h.reservations.Release(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseResponse{
		Released:         newAssignmentDTOs(result.Released),
		NothingToRelease: result.NothingToRelease,
	})
}

// acquireSubmission rejects a second inventory submission for the same event
// while one is in flight. Guard outages are logged and the request proceeds,
// since the store transaction is what keeps stock correct.
func (h *HTTPHandler) acquireSubmission(ctx context.Context, eventID string) (func(), error) {
	key := "inventory:" + eventID
	token, ok, err := h.guard.Acquire(ctx, key)
	if err != nil {
		h.logger.Warn("submission guard unavailable", zap.String("event_id", eventID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, domain.ErrSubmissionInFlight
	}
	return func() {
		if err := h.guard.Release(context.WithoutCancel(ctx), key, token); err != nil {
			h.logger.Warn("failed to release submission guard", zap.String("event_id", eventID), zap.Error(err))
		}
	}, nil
}

func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MovementFilter{
		ItemID:  q.Get("item_id"),
		EventID: q.Get("event_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	records, err := h.store.ListMovements(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]MovementResponse, 0, len(records))
	for _, m := range records {
		out = append(out, MovementResponse{
			ID:            m.ID,
			ItemID:        m.ItemID,
			QuantityMoved: m.QuantityMoved,
			MovementType:  string(m.MovementType),
			EventID:       m.EventID,
			Timestamp:     m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReconciliationResponse(report))
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid event", Fields: verr.Fields})
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrEventNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrSubmissionInFlight):
		status, message = http.StatusConflict, "submission already in progress"
	case errors.Is(err, domain.ErrItemExists), errors.Is(err, domain.ErrEventHasInventory):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrTransactionConflict):
		status, message = http.StatusServiceUnavailable, "inventory busy, retry"
	case errors.Is(err, auth.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, "unauthenticated"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
