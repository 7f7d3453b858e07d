package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
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

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL        string
	Token             string
	Duration          time.Duration
	Workers           int
	BookingRatio      float64
	UnavailableRatio  float64
	PrescriptionRatio float64
	ReadRatio         float64
	SlotLimit         int
}

// DataPool holds the ids the workers race on.
type DataPool struct {
	Slots []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

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
	Booking      OperationMetrics
	Unavailable  OperationMetrics
	Prescription OperationMetrics
	ListSlots    OperationMetrics
	ListUpcoming OperationMetrics
	ReadByID     OperationMetrics
}

// winners counts successful state changes per entity. Anything above one is
// a double booking or a second prescription.
type winners struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func (w *winners) add(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[id]++
}

func (w *winners) violations() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []uuid.UUID
	for id, n := range w.counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	return out
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics

	bookings      winners
	prescriptions winners
}

func main() {
	logger, err := logging.New(getEnv("LOG_LEVEL", "info"), "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("unavailable", cfg.UnavailableRatio),
		zap.Float64("prescription", cfg.PrescriptionRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config:        cfg,
		client:        &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
		bookings:      winners{counts: map[uuid.UUID]int{}},
		prescriptions: winners{counts: map[uuid.UUID]int{}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sim.pool, err = sim.loadDataPool(ctx)
	cancel()
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("loaded available slots", zap.Int("slots", len(sim.pool.Slots)))

	sim.Run()
	sim.PrintReport()

	if sim.Failed() {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	_ = godotenv.Load()

	cfg := SimConfig{
		APIBaseURL:        strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Token:             os.Getenv("SIM_TOKEN"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.4),
		UnavailableRatio:  getFloat("SIM_UNAVAILABLE_RATIO", 0.1),
		PrescriptionRatio: getFloat("SIM_PRESCRIPTION_RATIO", 0.2),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:         getInt("SIM_SLOT_LIMIT", 50),
	}

	total := cfg.BookingRatio + cfg.UnavailableRatio + cfg.PrescriptionRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.UnavailableRatio /= total
		cfg.PrescriptionRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("SIM_TOKEN is required (printed by cmd/seed)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool picks available slots through the API. A small slot pool keeps
// many workers racing for the same slots.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	resp, err := s.do(ctx, http.MethodGet, "/slots", nil)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list slots: unexpected status %d", resp.StatusCode)
	}

	var days []struct {
		Times []struct {
			ID          uuid.UUID `json:"id"`
			IsAvailable bool      `json:"is_available"`
		} `json:"times"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&days); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}

	dp := &DataPool{}
	for _, d := range days {
		for _, t := range d.Times {
			if t.IsAvailable && len(dp.Slots) < s.config.SlotLimit {
				dp.Slots = append(dp.Slots, t.ID)
			}
		}
	}
	if len(dp.Slots) == 0 {
		return nil, errors.New("no available slots, run cmd/seed first")
	}
	return dp, nil
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
	faker := gofakeit.New(uint64(rng.Int63()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.UnavailableRatio:
			s.doMarkUnavailable(ctx, rng)
		case r < s.config.BookingRatio+s.config.UnavailableRatio+s.config.PrescriptionRatio:
			s.doPrescription(ctx, rng, faker)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doRead(ctx, "/slots?days=14", &s.metrics.ListSlots)
			case 1:
				s.doRead(ctx, "/appointments?page=1&page_size=20", &s.metrics.ListUpcoming)
			case 2:
				if id, ok := s.pool.GetRandomAppointment(rng); ok {
					s.doRead(ctx, "/appointments/"+id.String(), &s.metrics.ReadByID)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	body, _ := json.Marshal(map[string]any{
		"patient_name": faker.Name(),
		"email":        faker.Email(),
		"video":        faker.Bool(),
	})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/slots/"+slotID.String()+"/book", body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			s.bookings.add(slotID)
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(appt.ID)
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// doMarkUnavailable counts a no-op flip as a conflict so the report shows how
// often callers lost the race.
func (s *Simulator) doMarkUnavailable(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/slots/"+slotID.String()+"/unavailable", nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var out struct {
				Changed bool `json:"changed"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&out)
			success, conflict = out.Changed, !out.Changed
		}
	}

	s.metrics.Unavailable.Record(latency, success, conflict)
}

func (s *Simulator) doPrescription(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	body, _ := json.Marshal(map[string]string{"text": faker.Sentence(8)})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments/"+apptID.String()+"/prescription", body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			s.prescriptions.add(apptID)
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Prescription.Record(latency, success, conflict)
}

func (s *Simulator) doRead(ctx context.Context, path string, om *OperationMetrics) {
	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, path, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := false
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	om.Record(latency, success, false)
}

func (s *Simulator) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

func (s *Simulator) Failed() bool {
	return len(s.bookings.violations()) > 0 || len(s.prescriptions.violations()) > 0
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots raced: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Book slot", &s.metrics.Booking)
	printOperationReport("Mark unavailable", &s.metrics.Unavailable)
	printOperationReport("Add prescription", &s.metrics.Prescription)
	printOperationReport("List slots", &s.metrics.ListSlots)
	printOperationReport("List upcoming", &s.metrics.ListUpcoming)
	printOperationReport("Read by ID", &s.metrics.ReadByID)

	doubleBooked := s.bookings.violations()
	doublePrescribed := s.prescriptions.violations()
	fmt.Printf("Double-booked slots: %d\n", len(doubleBooked))
	for _, id := range doubleBooked {
		fmt.Printf("  %s\n", id)
	}
	fmt.Printf("Appointments prescribed twice: %d\n", len(doublePrescribed))
	for _, id := range doublePrescribed {
		fmt.Printf("  %s\n", id)
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
