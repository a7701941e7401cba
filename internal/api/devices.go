package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PCSdevs/pay-to-power-core/internal/auth"
	"github.com/PCSdevs/pay-to-power-core/internal/command"
	"github.com/PCSdevs/pay-to-power-core/internal/device"
)

// registerDeviceRequest is the body for POST /devices.
type registerDeviceRequest struct {
	MACAddress  string `json:"macAddress"`
	BoardNumber string `json:"boardNumber"`
}

// handleRegisterDevice registers a device on behalf of an operator,
// ahead of the device's own MQTT handshake.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.MACAddress == "" {
		writeBadRequest(w, "macAddress is required")
		return
	}

	dev, err := s.issuer.RegisterDevice(r.Context(), actor, device.RegisterParams{
		MACAddress:  req.MACAddress,
		BoardNumber: req.BoardNumber,
	})
	if err != nil {
		s.writeDeviceError(w, err, "failed to register device")
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if err := s.authorizeView(r, actor, auth.ModuleDevice); err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	devices, err := s.devices.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if err := s.authorizeView(r, actor, auth.ModuleDevice); err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	dev, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// updateDeviceRequest is the body for PATCH /devices/{id}. All fields
// are optional; absent fields are left unchanged.
type updateDeviceRequest struct {
	BoardNumber     *string `json:"boardNumber"`
	HotspotID       *string `json:"hotspotId"`
	HotspotPassword *string `json:"hotspotPassword"`
	ClientID        *string `json:"clientId"`
	ClientPassword  *string `json:"clientPassword"`
	AdminID         *string `json:"adminId"`
	AdminPassword   *string `json:"adminPassword"`
	CompanyID       *string `json:"companyId"`
}

// handleUpdateDevice partially updates device credentials that are not
// pushed to the device itself.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	err := s.authorizer.Authorize(r.Context(), actor, auth.Requirement{
		Module:  auth.ModuleDevice,
		Actions: []string{auth.ActionEdit},
	})
	if err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.Update(r.Context(), chi.URLParam(r, "id"), device.UpdateParams{
		BoardNumber:     req.BoardNumber,
		HotspotID:       req.HotspotID,
		HotspotPassword: req.HotspotPassword,
		ClientID:        req.ClientID,
		ClientPassword:  req.ClientPassword,
		AdminID:         req.AdminID,
		AdminPassword:   req.AdminPassword,
		CompanyID:       req.CompanyID,
	})
	if err != nil {
		s.writeDeviceError(w, err, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice soft-deletes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	err := s.authorizer.Authorize(r.Context(), actor, auth.Requirement{
		Module:  auth.ModuleDevice,
		Actions: []string{auth.ActionEdit},
	})
	if err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDeviceError(w, err, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// wifiRequest is the body for PATCH /devices/{id}/wifi.
type wifiRequest struct {
	WifiSSID     string `json:"wifiSsid"`
	WifiPassword string `json:"wifiPassword"`
}

// handleUpdateWifi persists new wifi credentials and queues them for
// delivery to the device.
func (s *Server) handleUpdateWifi(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req wifiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.WifiSSID == "" {
		writeBadRequest(w, "wifiSsid is required")
		return
	}

	dev, err := s.issuer.UpdateWifi(r.Context(), actor, chi.URLParam(r, "id"), command.WifiParams{
		SSID:     req.WifiSSID,
		Password: req.WifiPassword,
	})
	if err != nil {
		s.writeDeviceError(w, err, "failed to update wifi")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleEnableClientMode queues a client-mode command for the device.
// The device flag flips once the device acknowledges the command.
func (s *Server) handleEnableClientMode(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	dev, err := s.issuer.EnableClientMode(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to enable client mode")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleListPending returns the device's undelivered commands.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if err := s.authorizeView(r, actor, auth.ModuleDevice); err != nil {
		writeForbidden(w, "permission denied")
		return
	}

	dev, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "failed to get device")
		return
	}

	pending, err := s.outbox.ListPending(r.Context(), dev.ID)
	if err != nil {
		writeInternalError(w, "failed to list pending messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "count": len(pending)})
}

// authorizeView checks the view action on a module.
func (s *Server) authorizeView(r *http.Request, actor auth.Actor, module string) error {
	return s.authorizer.Authorize(r.Context(), actor, auth.Requirement{
		Module:  module,
		Actions: []string{auth.ActionView},
	})
}

// writeDeviceError maps device and auth errors to HTTP responses.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrPermissionDenied):
		writeForbidden(w, "permission denied")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeConflict(w, "device already registered")
	case errors.Is(err, device.ErrInvalidMAC):
		writeBadRequest(w, "invalid mac address")
	default:
		writeInternalError(w, fallback)
	}
}
