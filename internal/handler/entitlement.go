package handler

import (
	"errors"
	"net/http"

	"reelpass/internal/entitlement"
	"reelpass/pkg/domain"
	"reelpass/pkg/validator"
)

type EntitlementHandler struct {
	service   *entitlement.Service
	validator *validator.Validator
	logger    Logger
}

func NewEntitlementHandler(service *entitlement.Service, val *validator.Validator, log Logger) *EntitlementHandler {
	return &EntitlementHandler{service: service, validator: val, logger: log}
}

type playbackResponse struct {
	Purchase       *domain.Purchase `json:"purchase"`
	Usability      domain.Usability `json:"usability"`
	AlreadyStarted bool             `json:"already_started"`
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// CreatePurchase issues a purchase for the caller.
func (h *EntitlementHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req entitlement.CreatePurchaseRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	p, err := h.service.CreatePurchase(r.Context(), callerID(r), &req)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// ListPurchases returns the caller's purchases, newest first.
func (h *EntitlementHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	views, err := h.service.ListPurchases(r.Context(), callerID(r), limit, offset)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"purchases": views,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *EntitlementHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.service.GetPurchase(r.Context(), callerID(r), id)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// BeginPlayback opens the playback window. Repeating the call is a
// successful no-op reported as already_started.
func (h *EntitlementHandler) BeginPlayback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.BeginPlayback(r.Context(), callerID(r), id)
	already := errors.Is(err, entitlement.ErrAlreadyStarted)
	if err != nil && !already {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, playbackResponse{
		Purchase:       p,
		Usability:      h.service.Evaluate(p),
		AlreadyStarted: already,
	})
}

// AuthorizePlayback registers the calling device and opens the playback
// window. Players call it before their first stream request.
func (h *EntitlementHandler) AuthorizePlayback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeDevice(w, r)
	if !ok {
		return
	}
	auth, err := h.service.AuthorizePlayback(r.Context(), callerID(r), id, in)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, auth)
}

func (h *EntitlementHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	devices, err := h.service.ListDevices(r.Context(), callerID(r), id)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// RegisterDevice admits the calling device to the purchase.
func (h *EntitlementHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	in, ok := h.decodeDevice(w, r)
	if !ok {
		return
	}
	res, err := h.service.RegisterDevice(r.Context(), callerID(r), id, in)
	if err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == domain.RegistrationAdmitted {
		status = http.StatusCreated
	}
	respondJSON(w, status, res)
}

func (h *EntitlementHandler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	deviceID, ok := pathUUID(w, r, "deviceId")
	if !ok {
		return
	}
	if err := h.service.DeactivateDevice(r.Context(), callerID(r), id, deviceID); err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokePurchase deactivates a purchase administratively.
func (h *EntitlementHandler) RevokePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req revokeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}
	if err := h.service.RevokePurchase(r.Context(), id, req.Reason); err != nil {
		respondServiceError(w, h.logger, r, err)
		return
	}
	h.logger.Warn("Purchase revoked by admin", map[string]interface{}{
		"purchase_id": id,
		"admin_id":    callerID(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *EntitlementHandler) decodeDevice(w http.ResponseWriter, r *http.Request) (entitlement.DeviceInput, bool) {
	var in entitlement.DeviceInput
	if !decodeJSON(w, r, &in, false) {
		return in, false
	}
	if errs := h.validator.ValidateStructured(&in); errs != nil {
		respondValidationErrors(w, errs)
		return in, false
	}
	in.UserAgent = r.UserAgent()
	return in, true
}
