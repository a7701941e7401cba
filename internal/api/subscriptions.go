package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PCSdevs/pay-to-power-core/internal/auth"
	"github.com/PCSdevs/pay-to-power-core/internal/command"
	"github.com/PCSdevs/pay-to-power-core/internal/device"
	"github.com/PCSdevs/pay-to-power-core/internal/subscription"
)

// createSubscriptionRequest is the body for POST /subscriptions.
type createSubscriptionRequest struct {
	DeviceID       string    `json:"deviceId"`
	Mode           string    `json:"mode"`
	Recurring      bool      `json:"recurring"`
	AdditionalTime int64     `json:"additionalTime"`
	DueTimestamp   time.Time `json:"dueTimestamp"`
}

// handleCreateSubscription creates a service plan for a device and
// queues it for delivery.
func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "deviceId is required")
		return
	}
	if req.Mode == "" {
		writeBadRequest(w, "mode is required")
		return
	}

	sub, err := s.issuer.CreateSubscription(r.Context(), actor, command.CreateSubscriptionParams{
		DeviceID:       req.DeviceID,
		Mode:           req.Mode,
		Recurring:      req.Recurring,
		AdditionalTime: req.AdditionalTime,
		DueTimestamp:   req.DueTimestamp,
	})
	if err != nil {
		s.writeSubscriptionError(w, err, "failed to create subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// handleGetSubscription returns the current plan for a device.
func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if err := s.authorizeView(r, actor, auth.ModuleSubscription); err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	sub, err := s.subscriptions.GetByDeviceID(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		s.writeSubscriptionError(w, err, "failed to get subscription")
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// updateSubscriptionRequest is the body for PATCH /subscriptions/{deviceId}.
// All fields are optional; absent fields are left unchanged.
type updateSubscriptionRequest struct {
	Mode           *string    `json:"mode"`
	Recurring      *bool      `json:"recurring"`
	AdditionalTime *int64     `json:"additionalTime"`
	DueTimestamp   *time.Time `json:"dueTimestamp"`
}

// handleUpdateSubscription updates a device's plan and queues the new
// terms for delivery. Rejected while the device is in client mode.
func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sub, err := s.issuer.UpdateSubscription(r.Context(), actor, chi.URLParam(r, "deviceId"), subscription.UpdateParams{
		Mode:           req.Mode,
		Recurring:      req.Recurring,
		AdditionalTime: req.AdditionalTime,
		DueTimestamp:   req.DueTimestamp,
	})
	if err != nil {
		s.writeSubscriptionError(w, err, "failed to update subscription")
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// handleSubscriptionHistory returns the plan audit trail for a device,
// oldest first.
func (s *Server) handleSubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if err := s.authorizeView(r, actor, auth.ModuleSubscription); err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	history, err := s.subscriptions.History(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		writeInternalError(w, "failed to get subscription history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": history, "count": len(history)})
}

// writeSubscriptionError maps subscription, device, and auth errors to
// HTTP responses.
func (s *Server) writeSubscriptionError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrPermissionDenied):
		writeForbidden(w, "permission denied")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		writeNotFound(w, "subscription not found")
	case errors.Is(err, subscription.ErrSubscriptionExists):
		writeConflict(w, "device already has a subscription")
	case errors.Is(err, subscription.ErrDeviceInClientMode):
		writeConflict(w, "device is in client mode")
	default:
		writeInternalError(w, fallback)
	}
}
