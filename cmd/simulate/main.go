package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/api"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	TenantID    uuid.UUID
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	PollRatio   float64
	Days        int
}

// target is one bookable start for one professional and service.
type target struct {
	ProfessionalID uuid.UUID
	ServiceID      uuid.UUID
	StartsAt       time.Time
}

func (t target) key() string {
	return t.ProfessionalID.String() + "@" + t.StartsAt.UTC().Format(time.RFC3339)
}

type DataPool struct {
	Targets []target

	mu     sync.Mutex
	holds  map[string]map[uuid.UUID]struct{} // slot key -> live hold ids
	slotOf map[uuid.UUID]string
	open   []uuid.UUID
}

func (dp *DataPool) AddHold(t target, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if _, seen := dp.slotOf[id]; seen {
		return
	}
	if dp.holds[t.key()] == nil {
		dp.holds[t.key()] = make(map[uuid.UUID]struct{})
	}
	dp.holds[t.key()][id] = struct{}{}
	dp.slotOf[id] = t.key()
	dp.open = append(dp.open, id)
}

// PickHold returns a random open hold.
func (dp *DataPool) PickHold(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.open) == 0 {
		return uuid.Nil, false
	}
	return dp.open[rng.Intn(len(dp.open))], true
}

// Release forgets a hold the API cancelled, freeing its slot.
func (dp *DataPool) Release(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if key, ok := dp.slotOf[id]; ok {
		delete(dp.holds[key], id)
	}
}

// TakeHold removes and returns a random open hold.
func (dp *DataPool) TakeHold(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.open) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.open))
	id := dp.open[idx]
	dp.open[idx] = dp.open[len(dp.open)-1]
	dp.open = dp.open[:len(dp.open)-1]
	return id, true
}

// DoubleHeld counts slots currently granted to more than one hold.
func (dp *DataPool) DoubleHeld() int {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	n := 0
	for _, ids := range dp.holds {
		if len(ids) > 1 {
			n++
		}
	}
	return n
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve OperationMetrics
	Reused  int64
	Poll    OperationMetrics
	Cancel  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	tenant := flag.String("tenant", "", "tenant id to load (defaults to SIM_TENANT_ID)")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("APP_ENV"), "simulate")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(*tenant)
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Stringer("tenant_id", cfg.TenantID),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("cancel_ratio", cfg.CancelRatio),
		zap.Float64("poll_ratio", cfg.PollRatio),
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := sim.loadDataPool(ctx)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	sim.pool = dataPool
	logger.Info("loaded bookable slots", zap.Int("slots", len(dataPool.Targets)))

	if err := sim.Run(); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
	sim.PrintReport()
}

func loadConfig(tenantFlag string) (SimConfig, error) {
	raw := tenantFlag
	if raw == "" {
		raw = os.Getenv("SIM_TENANT_ID")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return SimConfig{}, errors.New("a tenant id is required (-tenant or SIM_TENANT_ID)")
	}

	cfg := SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		TenantID:    tenantID,
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.3),
		PollRatio:   getFloat("SIM_POLL_RATIO", 0.5),
		Days:        getInt("SIM_DAYS", 7),
	}
	if cfg.Workers <= 0 {
		return SimConfig{}, errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return SimConfig{}, errors.New("SIM_DAYS must be > 0")
	}
	return cfg, nil
}

// loadDataPool reads the tenant's catalog and collects every free slot over
// the next few days for each professional and service.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var cat api.CatalogResponse
	if _, err := s.getJSON(ctx, fmt.Sprintf("/tenants/%s/catalog", s.config.TenantID), &cat); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(cat.Professionals) == 0 || len(cat.Services) == 0 {
		return nil, errors.New("tenant has no professionals or services")
	}

	dp := &DataPool{
		holds:  make(map[string]map[uuid.UUID]struct{}),
		slotOf: make(map[uuid.UUID]string),
	}
	today := time.Now()
	for d := 1; d <= s.config.Days; d++ {
		date := today.AddDate(0, 0, d).Format("2006-01-02")
		for _, p := range cat.Professionals {
			for _, svc := range cat.Services {
				q := url.Values{"date": {date}, "service_id": {svc.ID.String()}}
				var slots api.SlotsResponse
				path := fmt.Sprintf("/tenants/%s/professionals/%s/slots?%s", s.config.TenantID, p.ID, q.Encode())
				if _, err := s.getJSON(ctx, path, &slots); err != nil {
					return nil, fmt.Errorf("load slots: %w", err)
				}
				for _, at := range slots.Slots {
					dp.Targets = append(dp.Targets, target{ProfessionalID: p.ID, ServiceID: svc.ID, StartsAt: at})
				}
			}
		}
	}

	if len(dp.Targets) == 0 {
		return nil, errors.New("no bookable slots found")
	}
	return dp, nil
}

func (s *Simulator) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("simulation complete")
	return nil
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	seed := time.Now().UnixNano() + int64(workerID)
	rng := rand.New(rand.NewSource(seed))
	faker := gofakeit.New(uint64(seed))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.CancelRatio+s.config.PollRatio:
				s.doPoll(ctx, rng)
			default:
				s.doReserve(ctx, rng, faker)
			}
		}
	}
}

func (s *Simulator) doReserve(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]

	body, _ := json.Marshal(api.BeginReservationRequest{
		ProfessionalID: t.ProfessionalID.String(),
		ServiceID:      t.ServiceID.String(),
		StartsAt:       t.StartsAt,
		CustomerName:   faker.FirstName(),
		CustomerPhone:  faker.Numerify("119########"),
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/tenants/%s/reservations", s.config.APIBaseURL, s.config.TenantID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			success = true
			var hold api.HoldResponse
			if err := json.NewDecoder(resp.Body).Decode(&hold); err == nil && hold.HoldID != uuid.Nil {
				s.pool.AddHold(t, hold.HoldID)
			}
			if hold.Reused {
				atomic.AddInt64(&s.metrics.Reused, 1)
			}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			conflict = true
		}
	}
	if ctx.Err() != nil {
		return
	}

	s.metrics.Reserve.Record(latency, success, conflict)
}

func (s *Simulator) doPoll(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.PickHold(rng)
	if !ok {
		return
	}

	start := time.Now()
	var poll api.PollResponse
	status, err := s.getJSON(ctx, fmt.Sprintf("/reservations/%s/status", id), &poll)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Poll.Record(latency, err == nil, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeHold(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/reservations/%s/cancel", s.config.APIBaseURL, id), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusNoContent
		conflict = resp.StatusCode == http.StatusConflict
		if success {
			s.pool.Release(id)
		}
	}
	if ctx.Err() != nil {
		return
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Bookable slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Reserve", &s.metrics.Reserve)
	if reused := atomic.LoadInt64(&s.metrics.Reused); reused > 0 {
		fmt.Printf("  Reused holds: %d\n\n", reused)
	}
	printOperationReport("Poll status", &s.metrics.Poll)
	printOperationReport("Cancel", &s.metrics.Cancel)

	if n := s.pool.DoubleHeld(); n > 0 {
		fmt.Printf("DOUBLE BOOKED SLOTS: %d\n", n)
	} else {
		fmt.Println("No slot was held twice.")
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
