package catalog

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
)

// DemoShop is a generated tenant: professionals, services and weekly hours.
type DemoShop struct {
	TenantID      uuid.UUID
	Professionals []Professional
	Services      []Service
	Hours         availability.BusinessHours
	// Schedules holds custom hours for the professionals that have them.
	Schedules map[uuid.UUID]availability.ProfessionalSchedule
}

var demoServices = []struct {
	name     string
	minutes  int
	minCents int
	maxCents int
}{
	{"Corte", 30, 4000, 6000},
	{"Barba", 30, 3000, 4500},
	{"Corte + Barba", 60, 7000, 9500},
	{"Sobrancelha", 30, 1500, 2500},
	{"Pigmentação", 60, 8000, 12000},
	{"Luzes", 90, 12000, 18000},
}

func shifts(mStart, mEnd, aStart, aEnd int) availability.DayHours {
	return availability.DayHours{
		Open: true,
		Intervals: []availability.Interval{
			{Start: availability.NewTimeOfDay(mStart, 0), End: availability.NewTimeOfDay(mEnd, 0)},
			{Start: availability.NewTimeOfDay(aStart, 0), End: availability.NewTimeOfDay(aEnd, 0)},
		},
	}
}

// NewDemoShop generates a shop. The same seed gives the same names and prices.
func NewDemoShop(seed uint64, professionals int) DemoShop {
	f := gofakeit.New(seed)

	shop := DemoShop{
		TenantID:  uuid.New(),
		Schedules: make(map[uuid.UUID]availability.ProfessionalSchedule),
		Hours: availability.BusinessHours{Days: availability.WeeklyHours{
			time.Sunday:    {Open: false},
			time.Monday:    shifts(9, 12, 14, 19),
			time.Tuesday:   shifts(9, 12, 14, 19),
			time.Wednesday: shifts(9, 12, 14, 19),
			time.Thursday:  shifts(9, 12, 14, 19),
			time.Friday:    shifts(9, 12, 14, 20),
			time.Saturday:  shifts(8, 12, 13, 17),
		}},
	}

	for i := 0; i < professionals; i++ {
		p := Professional{
			ID:       uuid.New(),
			TenantID: shop.TenantID,
			Name:     f.FirstName() + " " + f.LastName(),
			Phone:    "119" + f.Numerify("########"),
		}
		shop.Professionals = append(shop.Professionals, p)

		// roughly a third work their own hours
		if f.Number(0, 2) == 0 {
			days := make(availability.WeeklyHours)
			for wd, h := range shop.Hours.Days {
				days[wd] = h
			}
			days[time.Monday] = availability.DayHours{Open: false}
			days[time.Saturday] = shifts(9, 12, 13, 18)
			shop.Schedules[p.ID] = availability.ProfessionalSchedule{Enabled: true, Days: days}
		}
	}

	for _, s := range demoServices {
		shop.Services = append(shop.Services, Service{
			ID:              uuid.New(),
			TenantID:        shop.TenantID,
			Name:            s.name,
			DurationMinutes: s.minutes,
			PriceCents:      int64(f.Number(s.minCents/500, s.maxCents/500) * 500),
		})
	}

	return shop
}

// Load copies the shop into s.
func (d DemoShop) Load(s *MemoryStore) {
	for _, p := range d.Professionals {
		s.PutProfessional(p)
	}
	for _, svc := range d.Services {
		s.PutService(svc)
	}
	for id, sched := range d.Schedules {
		s.PutSchedule(id, sched)
	}
	s.PutBusinessHours(d.TenantID, d.Hours)
}
