package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// SubscriptionHandler manages push device registrations.
type SubscriptionHandler struct {
	subs repository.SubscriptionRepository
}

func NewSubscriptionHandler(subs repository.SubscriptionRepository) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

type subscribeRequest struct {
	Recipient   string `json:"recipient"`
	DeviceToken string `json:"device_token"`
	Platform    string `json:"platform,omitempty"`
}

// Subscribe handles POST /api/v1/subscriptions
//
// @Summary     Register a push device token
// @Tags        subscriptions
// @Accept      json
// @Produce     json
// @Param       body  body      subscribeRequest  true  "Device registration"
// @Success     201   {object}  domain.PushSubscription
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/subscriptions [post]
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Recipient == "" {
		mapError(w, domain.ErrInvalidRecipient)
		return
	}
	if req.DeviceToken == "" {
		respondError(w, http.StatusUnprocessableEntity, "device_token must not be empty")
		return
	}

	now := time.Now().UTC()
	sub := &domain.PushSubscription{
		ID:          uuid.NewString(),
		Recipient:   req.Recipient,
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{token}
//
// @Summary  Deactivate a push device token
// @Tags     subscriptions
// @Param    token  path  string  true  "Device token"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/subscriptions/{token} [delete]
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.subs.Deactivate(r.Context(), chi.URLParam(r, "token")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
