// Package health отдаёт liveness, readiness и подробный статус зависимостей.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeTimeout = 2 * time.Second
	maxParallelProbes   = 8
)

// Status: состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Probe проверяет зависимость; nil: доступна.
type Probe func(ctx context.Context) error

// Check: результат одной проверки.
type Check struct {
	Status     Status `json:"status"`
	Required   bool   `json:"required"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report: ответ /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Version       string           `json:"version,omitempty"`
	CheckedAt     time.Time        `json:"checked_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

type registeredProbe struct {
	probe    Probe
	required bool
}

// Monitor хранит проверки зависимостей. Упавшая обязательная проверка делает сервис
// unhealthy и снимает readiness; необязательная только переводит его в degraded.
type Monitor struct {
	mu      sync.RWMutex
	probes  map[string]registeredProbe
	version string
	started time.Time
	timeout time.Duration
	now     func() time.Time
}

// Option настраивает Monitor.
type Option func(*Monitor)

// WithProbeTimeout ограничивает время всех проверок одного запроса.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMonitor(version string, opts ...Option) *Monitor {
	m := &Monitor{
		probes:  make(map[string]registeredProbe),
		version: version,
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	return m
}

// Require регистрирует обязательную зависимость.
func (m *Monitor) Require(name string, probe Probe) { m.add(name, probe, true) }

// Watch регистрирует необязательную зависимость.
func (m *Monitor) Watch(name string, probe Probe) { m.add(name, probe, false) }

func (m *Monitor) add(name string, probe Probe, required bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = registeredProbe{probe: probe, required: required}
}

// Evaluate выполняет все проверки параллельно в пределах таймаута.
func (m *Monitor) Evaluate(ctx context.Context) Report {
	m.mu.RLock()
	probes := make(map[string]registeredProbe, len(m.probes))
	for name, p := range m.probes {
		probes[name] = p
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]Check, len(probes))
		group  errgroup.Group
	)
	group.SetLimit(maxParallelProbes)
	for name, p := range probes {
		group.Go(func() error {
			check := run(ctx, p)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	now := m.now()
	report := Report{
		Status:        StatusHealthy,
		Version:       m.version,
		CheckedAt:     now.UTC(),
		UptimeSeconds: int64(now.Sub(m.started).Seconds()),
		Checks:        checks,
	}
	for _, check := range checks {
		if check.Status.rank() > report.Status.rank() {
			report.Status = check.Status
		}
	}
	return report
}

func run(ctx context.Context, p registeredProbe) Check {
	start := time.Now()
	err := p.probe(ctx)
	check := Check{
		Status:     StatusHealthy,
		Required:   p.required,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err == nil {
		return check
	}

	check.Message = err.Error()
	check.Status = StatusDegraded
	if p.required {
		check.Status = StatusUnhealthy
	}
	return check
}

// ServeHTTP отдаёт полный отчёт; 503 только для unhealthy.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := m.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready: readiness probe.
func (m *Monitor) Ready(w http.ResponseWriter, r *http.Request) {
	if m.Evaluate(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// Live: liveness probe: процесс отвечает, значит жив.
func Live(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}
