package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps domain errors to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var gErr *payment.GatewayError

	switch {
	case errors.Is(err, reservation.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, "hold_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, catalog.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, reservation.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, reservation.ErrSlotInPast):
		writeError(w, http.StatusUnprocessableEntity, "slot_in_past", err.Error())
	case errors.Is(err, reservation.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, reservation.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.As(err, &gErr):
		writeError(w, http.StatusBadGateway, "payment_gateway_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
