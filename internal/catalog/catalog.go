package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
)

var (
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrServiceNotFound      = errors.New("service not found")
)

type Professional struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Phone    string
}

type Service struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// Store is the read side of the shop's catalog. It also serves the hours and
// closures the availability calculator consumes.
type Store interface {
	availability.ScheduleStore

	GetProfessional(ctx context.Context, tenantID, id uuid.UUID) (*Professional, error)
	GetService(ctx context.Context, tenantID, id uuid.UUID) (*Service, error)

	ListProfessionals(ctx context.Context, tenantID uuid.UUID) ([]Professional, error)
	ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error)
}
