package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
)

// MemoryStore is a Store filled by hand, for STORAGE_DRIVER=memory and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	professionals map[uuid.UUID]Professional
	services      map[uuid.UUID]Service
	schedules     map[uuid.UUID]availability.ProfessionalSchedule
	hours         map[uuid.UUID]availability.BusinessHours
	blocks        []availability.DateBlock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		professionals: make(map[uuid.UUID]Professional),
		services:      make(map[uuid.UUID]Service),
		schedules:     make(map[uuid.UUID]availability.ProfessionalSchedule),
		hours:         make(map[uuid.UUID]availability.BusinessHours),
	}
}

func (s *MemoryStore) PutProfessional(p Professional) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.professionals[p.ID] = p
}

func (s *MemoryStore) PutService(svc Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *MemoryStore) PutSchedule(professionalID uuid.UUID, sched availability.ProfessionalSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[professionalID] = sched
}

func (s *MemoryStore) PutBusinessHours(tenantID uuid.UUID, h availability.BusinessHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[tenantID] = h
}

func (s *MemoryStore) AddBlock(b availability.DateBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.blocks = append(s.blocks, b)
}

func (s *MemoryStore) GetProfessional(_ context.Context, tenantID, id uuid.UUID) (*Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.professionals[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrProfessionalNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetService(_ context.Context, tenantID, id uuid.UUID) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok || svc.TenantID != tenantID {
		return nil, ErrServiceNotFound
	}
	return &svc, nil
}

func (s *MemoryStore) ListProfessionals(_ context.Context, tenantID uuid.UUID) ([]Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Professional
	for _, p := range s.professionals {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListServices(_ context.Context, tenantID uuid.UUID) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Service
	for _, svc := range s.services {
		if svc.TenantID == tenantID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ProfessionalSchedule(_ context.Context, _ uuid.UUID, professionalID uuid.UUID) (availability.ProfessionalSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedules[professionalID], nil
}

func (s *MemoryStore) BusinessHours(_ context.Context, tenantID uuid.UUID) (availability.BusinessHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hours[tenantID], nil
}

func (s *MemoryStore) DateBlocks(_ context.Context, tenantID uuid.UUID, day time.Time) ([]availability.DateBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := day.Date()
	var out []availability.DateBlock
	for _, b := range s.blocks {
		by, bm, bd := b.Date.Date()
		if b.TenantID == tenantID && by == y && bm == m && bd == d {
			out = append(out, b)
		}
	}
	return out, nil
}
