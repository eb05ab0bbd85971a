package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

type HealthChecker struct {
	mu         sync.RWMutex
	lastCycle  time.Time
	mode       string
	metricsOK  bool
	busOK      bool
	errors     []string
	staleAfter time.Duration
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastCycle time.Time `json:"last_cycle"`
	Mode      string    `json:"mode"`
	MetricsOK bool      `json:"metrics_ok"`
	BusOK     bool      `json:"bus_ok"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors:     make([]string, 0),
		busOK:      true,
		staleAfter: 5 * time.Minute,
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.metricsOK || time.Since(h.lastCycle) > h.staleAfter {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if len(h.errors) > 0 {
		status = "unhealthy"
		w.WriteHeader(http.StatusInternalServerError)
	}

	health := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastCycle: h.lastCycle,
		Mode:      h.mode,
		MetricsOK: h.metricsOK,
		BusOK:     h.busOK,
		Uptime:    time.Since(startTime).String(),
		Errors:    h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// RecordCycleHealth notes a completed cycle and its operating mode.
func (h *HealthChecker) RecordCycleHealth(mode string, metricsOK bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.mode = mode
	h.metricsOK = metricsOK
}

// SetBusOK tracks bus reachability for the health report.
func (h *HealthChecker) SetBusOK(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.busOK = ok
}

// AddError records an error string, keeping only the most recent ten.
func (h *HealthChecker) AddError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

// ClearErrors resets the recorded error list.
func (h *HealthChecker) ClearErrors() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = h.errors[:0]
}
