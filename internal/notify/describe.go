package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
)

// CatalogReader is the part of the catalog messages need.
type CatalogReader interface {
	GetProfessional(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Professional, error)
	GetService(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Service, error)
}

// Describe fills message fields for a. Catalog misses leave names blank.
func Describe(ctx context.Context, store CatalogReader, a *appointment.Appointment, loc *time.Location) AppointmentInfo {
	if loc == nil {
		loc = time.UTC
	}
	info := AppointmentInfo{
		CustomerName: a.CustomerName,
		StartsAt:     a.StartsAt.In(loc),
		PrepaidCents: a.PrepaidCents,
	}
	if store == nil {
		return info
	}

	if pro, err := store.GetProfessional(ctx, a.TenantID, a.ProfessionalID); err == nil {
		info.ProfessionalName = pro.Name
		info.ProfessionalPhone = pro.Phone
	}
	if svc, err := store.GetService(ctx, a.TenantID, a.ServiceID); err == nil {
		info.ServiceName = svc.Name
	}
	return info
}
