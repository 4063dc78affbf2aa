package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-slot-booking/internal/api"
	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/config"
	"github.com/hackgods/therapy-slot-booking/internal/db"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// simulate drives the read and enrollment endpoints of a running api-server
// and reports latencies. It never calls submit or check, so the booking site
// is not touched.

type SimConfig struct {
	APIBaseURL     string
	BookingURL     string
	Duration       time.Duration
	Workers        int
	EnrollRatio    float64
	LookupRatio    float64
	ListRatio      float64
	ClinicianLimit int
	PostgresDSN    string
}

type DataPool struct {
	Clinicians []string
	mu         sync.RWMutex
	hrefs      []string // enrolled during this run
}

func (dp *DataPool) AddHref(href string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.hrefs = append(dp.hrefs, href)
}

func (dp *DataPool) RandomHref(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.hrefs) == 0 {
		return "", false
	}
	return dp.hrefs[rng.Intn(len(dp.hrefs))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, worst time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Enroll          OperationMetrics
	Lookup          OperationMetrics
	ListByStatus    OperationMetrics
	ListByClinician OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *logging.Logger
}

func main() {
	cfg, err := loadConfig()
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With("service", "simulate")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"enroll", cfg.EnrollRatio,
		"lookup", cfg.LookupRatio,
		"list", cfg.ListRatio,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithApplicationName("simulate"))
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data pool loaded", "clinicians", len(dataPool.Clinicians))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		BookingURL:     getEnv("SIM_BOOKING_URL", "https://booking.example.com/appointments/request"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		EnrollRatio:    getFloat("SIM_ENROLL_RATIO", 0.3),
		LookupRatio:    getFloat("SIM_LOOKUP_RATIO", 0.4),
		ListRatio:      getFloat("SIM_LIST_RATIO", 0.3),
		ClinicianLimit: getInt("SIM_CLINICIAN_LIMIT", 500),
		PostgresDSN:    baseCfg.PostgresDSN,
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}

	// Normalize ratios
	total := cfg.EnrollRatio + cfg.LookupRatio + cfg.ListRatio
	if total > 0 {
		cfg.EnrollRatio /= total
		cfg.LookupRatio /= total
		cfg.ListRatio /= total
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM clinicians ORDER BY id LIMIT $1`, cfg.ClinicianLimit)
	if err != nil {
		return nil, fmt.Errorf("load clinicians: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Clinicians = append(dataPool.Clinicians, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Clinicians) == 0 {
		return nil, fmt.Errorf("no clinicians loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.EnrollRatio:
			s.doEnroll(ctx, rng)
		case r < s.config.EnrollRatio+s.config.LookupRatio:
			s.doLookup(ctx, rng)
		case rng.Intn(2) == 0:
			s.doList(ctx, &s.metrics.ListByStatus, "status=unknown&limit=20")
		default:
			clinician := s.pool.Clinicians[rng.Intn(len(s.pool.Clinicians))]
			s.doList(ctx, &s.metrics.ListByClinician, "clinician_id="+url.QueryEscape(clinician))
		}
	}
}

func (s *Simulator) doEnroll(ctx context.Context, rng *rand.Rand) {
	slot := time.Now().AddDate(0, 0, 2+rng.Intn(28))
	q := url.Values{}
	q.Set("clinicianId", s.pool.Clinicians[rng.Intn(len(s.pool.Clinicians))])
	q.Set("date", slot.Format("2006-01-02"))
	q.Set("time", fmt.Sprintf("%02d:%02d", 8+rng.Intn(10), 30*rng.Intn(2)))
	href := s.config.BookingURL + "?" + q.Encode()

	body, _ := json.Marshal(api.BookingRequest{
		Href: href,
		Patient: appointment.PatientData{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     gofakeit.Email(),
			Phone:     gofakeit.Phone(),
		},
	})

	start := time.Now()
	status, err := s.send(ctx, http.MethodPost, "/appointments", body)
	success := err == nil && status == http.StatusCreated
	if success {
		s.pool.AddHref(href)
	}
	s.metrics.Enroll.Record(time.Since(start), success)
}

func (s *Simulator) doLookup(ctx context.Context, rng *rand.Rand) {
	href, ok := s.pool.RandomHref(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.send(ctx, http.MethodGet, "/appointments/lookup?href="+url.QueryEscape(href), nil)
	s.metrics.Lookup.Record(time.Since(start), err == nil && status == http.StatusOK)
}

func (s *Simulator) doList(ctx context.Context, om *OperationMetrics, query string) {
	start := time.Now()
	status, err := s.send(ctx, http.MethodGet, "/appointments?"+query, nil)
	om.Record(time.Since(start), err == nil && status == http.StatusOK)
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Enroll", &s.metrics.Enroll)
	printOperationReport("Lookup", &s.metrics.Lookup)
	printOperationReport("List by status", &s.metrics.ListByStatus)
	printOperationReport("List by clinician", &s.metrics.ListByClinician)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95, worst := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), worst.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
