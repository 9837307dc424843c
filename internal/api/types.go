package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

type BeginReservationRequest struct {
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id"`
	StartsAt       time.Time `json:"starts_at"`
	CustomerName   string    `json:"customer_name"`
	CustomerPhone  string    `json:"customer_phone"`
}

type CreateAppointmentRequest struct {
	BeginReservationRequest
	Status string `json:"status"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

type HoldResponse struct {
	HoldID           uuid.UUID `json:"hold_id"`
	QRPayload        string    `json:"qr_payload"`
	ExpiresAt        time.Time `json:"expires_at"`
	PaymentReference string    `json:"payment_reference"`
	PrepaidCents     int64     `json:"prepaid_cents"`
	Reused           bool      `json:"reused"`
}

func newHoldResponse(h *reservation.HoldResult) HoldResponse {
	return HoldResponse{
		HoldID:           h.HoldID,
		QRPayload:        h.QRPayload,
		ExpiresAt:        h.ExpiresAt,
		PaymentReference: h.PaymentReference,
		PrepaidCents:     h.PrepaidCents,
		Reused:           h.Reused,
	}
}

type PollResponse struct {
	HoldID              uuid.UUID `json:"hold_id"`
	Result              string    `json:"result"`
	PollIntervalSeconds float64   `json:"poll_interval_seconds,omitempty"`
}

type SlotsResponse struct {
	Date  string      `json:"date"`
	Slots []time.Time `json:"slots"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	ProfessionalID   uuid.UUID  `json:"professional_id"`
	ServiceID        uuid.UUID  `json:"service_id"`
	StartsAt         time.Time  `json:"starts_at"`
	DurationMinutes  int        `json:"duration_minutes"`
	CustomerName     string     `json:"customer_name"`
	CustomerPhone    string     `json:"customer_phone"`
	Status           string     `json:"status"`
	HoldExpiresAt    *time.Time `json:"hold_expires_at,omitempty"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	TotalCents       int64      `json:"total_cents"`
	PrepaidCents     int64      `json:"prepaid_cents"`
	Refunded         bool       `json:"refunded"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		TenantID:         a.TenantID,
		ProfessionalID:   a.ProfessionalID,
		ServiceID:        a.ServiceID,
		StartsAt:         a.StartsAt,
		DurationMinutes:  a.DurationMinutes,
		CustomerName:     a.CustomerName,
		CustomerPhone:    a.CustomerPhone,
		Status:           string(a.Status),
		HoldExpiresAt:    a.HoldExpiresAt,
		PaymentReference: a.PaymentReference,
		TotalCents:       a.TotalCents,
		PrepaidCents:     a.PrepaidCents,
		Refunded:         a.Refunded,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ProfessionalResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ServiceResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
}

type CatalogResponse struct {
	Professionals []ProfessionalResponse `json:"professionals"`
	Services      []ServiceResponse      `json:"services"`
}
