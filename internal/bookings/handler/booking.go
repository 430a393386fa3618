package handler

import (
	"encoding/json"
	"net/http"

	"boxoffice/internal/bookings/service"
	httputil "boxoffice/pkg/http"
	"boxoffice/pkg/logger"
	"boxoffice/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) AcquireHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AcquireHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "AcquireHold")
		return
	}

	result, err := h.service.AcquireHold(r.Context(), &req)
	if err != nil {
		h.writeError(w, "AcquireHold", err)
		return
	}
	if !result.Granted {
		// Losing a race for units is a normal outcome, presented as a
		// conflict with the offending subset.
		if writeErr := httputil.WriteJSON(w, http.StatusConflict, httputil.SuccessResponse{Data: result}); writeErr != nil {
			h.log.Error("failed to write conflict response", "handler", "AcquireHold", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "AcquireHold", "error", err)
	}
}

func (h *BookingHandler) RenewHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.AcquireHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "RenewHold")
		return
	}

	result, err := h.service.RenewHold(r.Context(), &req)
	if err != nil {
		h.writeError(w, "RenewHold", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "RenewHold", "error", err)
	}
}

func (h *BookingHandler) ReleaseHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ReleaseHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "ReleaseHold")
		return
	}

	released, err := h.service.ReleaseHold(r.Context(), &req)
	if err != nil {
		h.writeError(w, "ReleaseHold", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]bool{"released": released}); err != nil {
		h.log.Error("failed to write success response", "handler", "ReleaseHold", "error", err)
	}
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "CreateBooking")
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), &req)
	if err != nil {
		h.writeError(w, "CreateBooking", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateBooking", "error", err)
	}
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetBooking(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetBooking", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetBooking", "error", err)
	}
}

func (h *BookingHandler) Settle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.SettleBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "Settle")
		return
	}

	booking, err := h.service.Settle(r.Context(), ps.ByName("id"), req.OwnerID, req.Method)
	if err != nil {
		h.writeError(w, "Settle", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Settle", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, "Cancel")
		return
	}

	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"), req.OwnerID)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "error", err)
	}
}

func (h *BookingHandler) AvailableUnits(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	units, err := h.service.AvailableUnits(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "AvailableUnits", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"unit_ids": units}); err != nil {
		h.log.Error("failed to write success response", "handler", "AvailableUnits", "error", err)
	}
}

func (h *BookingHandler) LockedUnits(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	units, err := h.service.LockedUnits(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "LockedUnits", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"unit_ids": units}); err != nil {
		h.log.Error("failed to write success response", "handler", "LockedUnits", "error", err)
	}
}

func (h *BookingHandler) UnitStates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	states, err := h.service.UnitStates(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "UnitStates", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]any{"units": states}); err != nil {
		h.log.Error("failed to write success response", "handler", "UnitStates", "error", err)
	}
}

func (h *BookingHandler) writeBadBody(w http.ResponseWriter, handlerName string) {
	if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
		Error: "Invalid request body",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", handlerName, "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/holds", h.AcquireHold)
	router.POST("/api/v1/holds/renew", h.RenewHold)
	router.DELETE("/api/v1/holds", h.ReleaseHold)
	router.POST("/api/v1/bookings", h.CreateBooking)
	router.GET("/api/v1/bookings/id/:id", h.GetBooking)
	router.POST("/api/v1/bookings/id/:id/settle", h.Settle)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/groups/:id/units", h.UnitStates)
	router.GET("/api/v1/groups/:id/units/available", h.AvailableUnits)
	router.GET("/api/v1/groups/:id/units/locked", h.LockedUnits)
}
