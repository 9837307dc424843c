package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

const dateLayout = "2006-01-02"

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+toSnake(name), name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func slotsHandler(slots *availability.Service, cat catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := parseUUIDParam(w, r, "tenantID")
		if !ok {
			return
		}
		professionalID, ok := parseUUIDParam(w, r, "professionalID")
		if !ok {
			return
		}

		q := r.URL.Query()
		serviceID, err := uuid.Parse(q.Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		day, err := time.ParseInLocation(dateLayout, q.Get("date"), slots.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		if _, err := cat.GetProfessional(r.Context(), tenantID, professionalID); err != nil {
			writeServiceError(w, err)
			return
		}
		svc, err := cat.GetService(r.Context(), tenantID, serviceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		times, err := slots.Slots(r.Context(), tenantID, professionalID, day, svc.DurationMinutes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if times == nil {
			times = []time.Time{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{Date: day.Format(dateLayout), Slots: times})
	}
}

func decodeSlot(w http.ResponseWriter, r *http.Request, req BeginReservationRequest) (reservation.SlotRequest, reservation.Customer, bool) {
	tenantID, ok := parseUUIDParam(w, r, "tenantID")
	if !ok {
		return reservation.SlotRequest{}, reservation.Customer{}, false
	}
	professionalID, err := uuid.Parse(req.ProfessionalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
		return reservation.SlotRequest{}, reservation.Customer{}, false
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return reservation.SlotRequest{}, reservation.Customer{}, false
	}
	if req.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_starts_at", "starts_at is required")
		return reservation.SlotRequest{}, reservation.Customer{}, false
	}

	slot := reservation.SlotRequest{
		TenantID:       tenantID,
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		StartsAt:       req.StartsAt,
	}
	cust := reservation.Customer{Name: req.CustomerName, Phone: req.CustomerPhone}
	return slot, cust, true
}

func beginReservationHandler(coord *reservation.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BeginReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		slot, cust, ok := decodeSlot(w, r, req)
		if !ok {
			return
		}

		hold, err := coord.BeginReservation(r.Context(), slot, cust)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		status := http.StatusCreated
		if hold.Reused {
			status = http.StatusOK
		}
		writeJSON(w, status, newHoldResponse(hold))
	}
}

func pollReservationHandler(coord *reservation.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		res, err := coord.PollStatus(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := PollResponse{HoldID: id, Result: string(res)}
		if res == reservation.StillPending || res == reservation.Rejected {
			resp.PollIntervalSeconds = coord.PollInterval().Seconds()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelReservationHandler(coord *reservation.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := coord.CancelReservation(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createAppointmentHandler(coord *reservation.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		slot, cust, ok := decodeSlot(w, r, req.BeginReservationRequest)
		if !ok {
			return
		}

		status := appointment.AppointmentStatus(req.Status)
		if status == "" {
			status = appointment.StatusPending
		}

		appt, err := coord.CreateDirect(r.Context(), reservation.DirectRequest{
			Slot:     slot,
			Customer: cust,
			Status:   status,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
	}
}

func getAppointmentHandler(coord *reservation.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := coord.Appointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(coord *reservation.Coordinator, slots *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := parseUUIDParam(w, r, "tenantID")
		if !ok {
			return
		}

		q := r.URL.Query()
		f := appointment.ListFilter{TenantID: tenantID}

		if v := q.Get("professional_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
				return
			}
			f.ProfessionalID = &id
		}
		if v := q.Get("status"); v != "" {
			for _, s := range strings.Split(v, ",") {
				st := appointment.AppointmentStatus(strings.TrimSpace(s))
				if !st.Valid() {
					writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+string(st))
					return
				}
				f.Statuses = append(f.Statuses, st)
			}
		}
		if v := q.Get("date"); v != "" {
			day, err := time.ParseInLocation(dateLayout, v, slots.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			from, to := availability.DayBounds(day, slots.Location())
			f.From, f.To = &from, &to
		}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		f.Offset, _ = strconv.Atoi(q.Get("offset"))
		f = f.Normalize()

		appts, err := coord.ListAppointments(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentResponse, 0, len(appts)),
			Limit:        f.Limit,
			Offset:       f.Offset,
		}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, newAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func refundHandler(refunds *reservation.RefundCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RefundRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := refunds.Refund(r.Context(), id, strings.TrimSpace(req.Reason))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func catalogHandler(cat catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := parseUUIDParam(w, r, "tenantID")
		if !ok {
			return
		}

		pros, err := cat.ListProfessionals(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		svcs, err := cat.ListServices(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := CatalogResponse{
			Professionals: make([]ProfessionalResponse, 0, len(pros)),
			Services:      make([]ServiceResponse, 0, len(svcs)),
		}
		for _, p := range pros {
			resp.Professionals = append(resp.Professionals, ProfessionalResponse{ID: p.ID, Name: p.Name})
		}
		for _, s := range svcs {
			resp.Services = append(resp.Services, ServiceResponse{
				ID:              s.ID,
				Name:            s.Name,
				DurationMinutes: s.DurationMinutes,
				PriceCents:      s.PriceCents,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
