package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apimw "github.com/matchpoint/notify-engine/internal/api/middleware"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// NotificationHandler enqueues notifications and exposes their state.
type NotificationHandler struct {
	queue  repository.QueueRepository
	logger *zap.Logger
}

func NewNotificationHandler(queue repository.QueueRepository, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{queue: queue, logger: logger}
}

// Create handles POST /api/v1/notifications
//
// @Summary     Enqueue a notification
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.EnqueueRequest  true  "Notification payload"
// @Success     201   {object}  domain.QueueItem
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/notifications [post]
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		mapError(w, err)
		return
	}

	now := time.Now().UTC()
	item := &domain.QueueItem{
		ID:           uuid.NewString(),
		Recipient:    req.Recipient,
		Trigger:      req.Trigger,
		Priority:     req.Priority,
		Channels:     req.Channels,
		TemplateData: req.TemplateData,
		Status:       domain.StatusPending,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ScheduledFor != nil {
		item.ScheduledFor = req.ScheduledFor.UTC()
	}

	if err := h.queue.Enqueue(r.Context(), item); err != nil {
		h.logger.Warn("enqueue notification failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// GetByID handles GET /api/v1/notifications/{id}
//
// @Summary  Get a queued notification by ID
// @Tags     notifications
// @Produce  json
// @Param    id   path      string  true  "Notification UUID"
// @Success  200  {object}  domain.QueueItem
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/notifications/{id} [get]
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}
