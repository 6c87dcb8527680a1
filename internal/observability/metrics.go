package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// Metrics holds every exported series for the gamification engine. All
// methods are safe on a nil receiver so call sites never have to check
// whether metrics are enabled.
type Metrics struct {
	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
	aggregateTotal     *Counter
	aggregateError     *Counter
	aggregateGood      *Counter

	storeOps     *CounterVec
	storeLatency *HistogramVec
	storeTotal   *Counter
	storeError   *Counter

	corruption *CounterVec

	sweepRuns      *CounterVec
	sweepDuration  *HistogramVec
	sweepScanned   *Counter
	sweepHealed    *Counter
	sweepFailures  *Counter
	sweepRunsTotal *Counter
	sweepRunsError *Counter

	backupRuns      *CounterVec
	backupDuration  *HistogramVec
	backupRunsTotal *Counter
	backupRunsError *Counter

	iconRenders      *CounterVec
	iconRenderTiming *HistogramVec

	providerActive       *GaugeVec
	providerBootstrap    *CounterVec
	backupStoreActive    *GaugeVec
	backupStoreBootstrap *CounterVec

	pgStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge
	badgerLSM  *Gauge
	badgerVlog *Gauge

	sloCompliance *GaugeVec
	sloBudget     *GaugeVec
	sloBurn       *GaugeVec

	sloLatencyThreshold float64
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func parseBoolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if val == "" {
		return fallback
	}
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseFloatEnv(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		latencyThreshold := parseFloatEnv("SLO_AWARD_LATENCY_THRESHOLD_SECONDS", 0.25)
		if latencyThreshold <= 0 {
			latencyThreshold = 0.25
		}
		instance = &Metrics{
			aggregateOps: NewCounterVec(
				"aq_aggregate_operations_total",
				"Gamification aggregate operations by op/status.",
				[]string{"op", "status"},
			),
			aggregateLatency: NewHistogramVec(
				"aq_aggregate_operation_duration_seconds",
				"Gamification aggregate operation latency in seconds by op/status.",
				[]string{"op", "status"},
				[]float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			),
			aggregateConflicts: NewCounterVec(
				"aq_aggregate_conflicts_total",
				"Conditional writes lost to a concurrent writer by op.",
				[]string{"op"},
			),
			aggregateRetries: NewCounterVec(
				"aq_aggregate_read_retries_total",
				"Profile read retries by op.",
				[]string{"op"},
			),
			aggregateTotal: NewCounter("aq_aggregate_operations_total_all", "Gamification aggregate operations (all)."),
			aggregateError: NewCounter("aq_aggregate_operations_error_total", "Gamification aggregate operations with a server-side failure status."),
			aggregateGood:  NewCounter("aq_aggregate_operations_good_latency_total", "Gamification aggregate operations under the SLO latency threshold."),
			storeOps: NewCounterVec(
				"aq_profile_store_operations_total",
				"Profile store operations by backend/op/status.",
				[]string{"backend", "op", "status"},
			),
			storeLatency: NewHistogramVec(
				"aq_profile_store_operation_duration_seconds",
				"Profile store operation latency in seconds by backend/op/status.",
				[]string{"backend", "op", "status"},
				[]float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			),
			storeTotal: NewCounter("aq_profile_store_operations_total_all", "Profile store operations (all)."),
			storeError: NewCounter("aq_profile_store_operations_error_total", "Profile store operations that returned an error."),
			corruption: NewCounterVec(
				"aq_profile_corruption_total",
				"Profiles that failed integrity validation by backend/issue/field.",
				[]string{"backend", "issue", "field"},
			),
			sweepRuns: NewCounterVec(
				"aq_profile_sweep_runs_total",
				"Profile sweep runs by status.",
				[]string{"status"},
			),
			sweepDuration: NewHistogramVec(
				"aq_profile_sweep_duration_seconds",
				"Profile sweep duration in seconds by status.",
				[]string{"status"},
				[]float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			),
			sweepScanned:   NewCounter("aq_profile_sweep_scanned_total", "Profiles scanned by sweeps."),
			sweepHealed:    NewCounter("aq_profile_sweep_healed_total", "Profiles reset to defaults by sweeps."),
			sweepFailures:  NewCounter("aq_profile_sweep_read_failures_total", "Profiles sweeps could not read."),
			sweepRunsTotal: NewCounter("aq_profile_sweep_runs_total_all", "Profile sweep runs (all)."),
			sweepRunsError: NewCounter("aq_profile_sweep_runs_error_total", "Profile sweep runs with failure status."),
			backupRuns: NewCounterVec(
				"aq_profile_backup_runs_total",
				"Profile backup runs by status.",
				[]string{"status"},
			),
			backupDuration: NewHistogramVec(
				"aq_profile_backup_duration_seconds",
				"Profile backup run duration in seconds by status.",
				[]string{"status"},
				[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			),
			backupRunsTotal: NewCounter("aq_profile_backup_runs_total_all", "Profile backup runs (all)."),
			backupRunsError: NewCounter("aq_profile_backup_runs_error_total", "Profile backup runs with failure status."),
			iconRenders: NewCounterVec(
				"aq_badge_icon_renders_total",
				"Badge icon renders by status.",
				[]string{"status"},
			),
			iconRenderTiming: NewHistogramVec(
				"aq_badge_icon_render_duration_seconds",
				"Badge icon render duration in seconds by status.",
				[]string{"status"},
				[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			),
			providerActive: NewGaugeVec(
				"aq_profile_store_provider_active",
				"Selected profile store backend (1=active).",
				[]string{"provider"},
			),
			providerBootstrap: NewCounterVec(
				"aq_profile_store_provider_bootstrap_total",
				"Profile store provider bootstrap attempts by provider/status/code.",
				[]string{"provider", "status", "code"},
			),
			backupStoreActive: NewGaugeVec(
				"aq_backup_store_active",
				"Selected backup store (1=active).",
				[]string{"store"},
			),
			backupStoreBootstrap: NewCounterVec(
				"aq_backup_store_bootstrap_total",
				"Backup store bootstrap attempts by store/status/code.",
				[]string{"store", "status", "code"},
			),
			pgStats:             NewGaugeVec("aq_postgres_stats", "Postgres connection stats.", []string{"metric"}),
			redisUp:             NewGauge("aq_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:           NewGauge("aq_redis_ping_seconds", "Redis ping latency in seconds."),
			badgerLSM:           NewGauge("aq_badger_lsm_size_bytes", "Badger LSM tree size in bytes."),
			badgerVlog:          NewGauge("aq_badger_vlog_size_bytes", "Badger value log size in bytes."),
			sloCompliance:       NewGaugeVec("aq_slo_compliance", "SLO compliance (SLI) over window.", []string{"slo", "window"}),
			sloBudget:           NewGaugeVec("aq_slo_error_budget_remaining", "Error budget remaining (0-1).", []string{"slo", "window"}),
			sloBurn:             NewGaugeVec("aq_slo_burn_rate", "Error budget burn rate.", []string{"slo", "window"}),
			sloLatencyThreshold: latencyThreshold,
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	series := []interface{ WritePrometheus(io.Writer) error }{
		m.aggregateOps,
		m.aggregateLatency,
		m.aggregateConflicts,
		m.aggregateRetries,
		m.aggregateTotal,
		m.aggregateError,
		m.aggregateGood,
		m.storeOps,
		m.storeLatency,
		m.storeTotal,
		m.storeError,
		m.corruption,
		m.sweepRuns,
		m.sweepDuration,
		m.sweepScanned,
		m.sweepHealed,
		m.sweepFailures,
		m.sweepRunsTotal,
		m.sweepRunsError,
		m.backupRuns,
		m.backupDuration,
		m.backupRunsTotal,
		m.backupRunsError,
		m.iconRenders,
		m.iconRenderTiming,
		m.providerActive,
		m.providerBootstrap,
		m.backupStoreActive,
		m.backupStoreBootstrap,
		m.pgStats,
		m.redisUp,
		m.redisPing,
		m.badgerLSM,
		m.badgerVlog,
		m.sloCompliance,
		m.sloBudget,
		m.sloBurn,
	}
	for _, s := range series {
		if err := s.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAggregateOperation records one aggregate operation outcome. The
// status is the error code of the result, or "success".
func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.aggregateOps.Inc(op, status)
	if dur > 0 {
		m.aggregateLatency.Observe(dur.Seconds(), op, status)
	}
	m.aggregateTotal.Inc()
	if isAggregateFailureStatus(status) {
		m.aggregateError.Inc()
	}
	if m.sloLatencyThreshold > 0 && dur.Seconds() <= m.sloLatencyThreshold {
		m.aggregateGood.Inc()
	}
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	m.aggregateConflicts.Inc(op)
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	m.aggregateRetries.Inc(op)
}

// ObserveProfileStoreOperation records one call against a profile store
// backend. Status is "success", "corrupt" or "error".
func (m *Metrics) ObserveProfileStoreOperation(backend, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	backend = strings.TrimSpace(backend)
	if backend == "" {
		backend = "unknown"
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.storeOps.Inc(backend, op, status)
	if dur > 0 {
		m.storeLatency.Observe(dur.Seconds(), backend, op, status)
	}
	m.storeTotal.Inc()
	if isFailureStatus(status) {
		m.storeError.Inc()
	}
}

func (m *Metrics) IncProfileCorruption(backend, issue, field string) {
	if m == nil {
		return
	}
	backend = strings.TrimSpace(backend)
	if backend == "" {
		backend = "unknown"
	}
	issue = strings.TrimSpace(issue)
	if issue == "" {
		issue = "unknown"
	}
	field = strings.TrimSpace(field)
	if field == "" {
		field = "none"
	}
	m.corruption.Inc(backend, issue, field)
}

func (m *Metrics) ObserveSweep(status string, dur time.Duration, scanned, healed, failed int) {
	if m == nil {
		return
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.sweepRuns.Inc(status)
	if dur > 0 {
		m.sweepDuration.Observe(dur.Seconds(), status)
	}
	if scanned > 0 {
		m.sweepScanned.Add(float64(scanned))
	}
	if healed > 0 {
		m.sweepHealed.Add(float64(healed))
	}
	if failed > 0 {
		m.sweepFailures.Add(float64(failed))
	}
	m.sweepRunsTotal.Inc()
	if isFailureStatus(status) {
		m.sweepRunsError.Inc()
	}
}

func (m *Metrics) ObserveBackupRun(status string, dur time.Duration) {
	if m == nil {
		return
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.backupRuns.Inc(status)
	if dur > 0 {
		m.backupDuration.Observe(dur.Seconds(), status)
	}
	m.backupRunsTotal.Inc()
	if isFailureStatus(status) {
		m.backupRunsError.Inc()
	}
}

func (m *Metrics) ObserveIconRender(status string, dur time.Duration) {
	if m == nil {
		return
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	m.iconRenders.Inc(status)
	if dur > 0 {
		m.iconRenderTiming.Observe(dur.Seconds(), status)
	}
}

// SetProfileProviderActive marks the selected profile store backend on the
// active gauge. Set once during bootstrap.
func (m *Metrics) SetProfileProviderActive(provider string) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "unknown"
	}
	m.providerActive.Set(1, provider)
}

func (m *Metrics) ObserveProfileProviderBootstrap(provider, status, code string) {
	if m == nil {
		return
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = "none"
	}
	m.providerBootstrap.Inc(provider, status, code)
}

func (m *Metrics) SetBackupStoreActive(store string) {
	if m == nil {
		return
	}
	store = strings.TrimSpace(store)
	if store == "" {
		store = "unknown"
	}
	m.backupStoreActive.Set(1, store)
}

func (m *Metrics) ObserveBackupStoreBootstrap(store, status, code string) {
	if m == nil {
		return
	}
	store = strings.TrimSpace(store)
	if store == "" {
		store = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = "none"
	}
	m.backupStoreBootstrap.Inc(store, status, code)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
				m.pgStats.Set(float64(stats.MaxIdleClosed), "max_idle_closed")
				m.pgStats.Set(float64(stats.MaxIdleTimeClosed), "max_idle_time_closed")
				m.pgStats.Set(float64(stats.MaxLifetimeClosed), "max_lifetime_closed")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartBadgerCollector(ctx context.Context, log *logger.Logger, db *badger.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if db.IsClosed() {
					if log != nil {
						log.Warn("metrics: badger size unavailable, database closed")
					}
					return
				}
				lsm, vlog := db.Size()
				m.badgerLSM.Set(float64(lsm))
				m.badgerVlog.Set(float64(vlog))
			}
		}
	}()
}

// ---- lightweight metric primitives (Prometheus exposition) ----
//
// Series are written in sorted label order so /metrics output is stable
// between scrapes and assertable in tests.

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	c.Add(1, values...)
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

// Value returns the current count for one label combination.
func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	lbl := labelString(c.labelNames, values)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[lbl]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if err := writeHeader(w, c.name, c.help, "counter"); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range sortedKeys(c.values) {
		if _, err := fmt.Fprintf(w, "%s%s %s\n", c.name, k, formatValue(c.values[k])); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	c.Add(1)
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if err := writeHeader(w, c.name, c.help, "counter"); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %s\n", c.name, formatValue(c.val))
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.val
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if err := writeHeader(w, g.name, g.help, "gauge"); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %s\n", g.name, formatValue(g.val))
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) Value(values ...string) float64 {
	if g == nil {
		return 0
	}
	lbl := labelString(g.labelNames, values)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.values[lbl]
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if err := writeHeader(w, g.name, g.help, "gauge"); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, k := range sortedKeys(g.values) {
		if _, err := fmt.Fprintf(w, "%s%s %s\n", g.name, k, formatValue(g.values[k])); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

// histogram keeps raw per-bucket counts; cumulative le counts are derived
// at exposition time.
type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: sorted, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets)+1)}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	hist.counts[sort.SearchFloat64s(h.buckets, v)]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hist := h.values[k]
		var cumulative uint64
		for i, b := range h.buckets {
			cumulative += hist.counts[i]
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, formatValue(b)), cumulative); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), hist.total); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %s\n", h.name, k, formatValue(hist.sum)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, hist.total); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, name, help, kind string) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", name, help); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	return err
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}

// isAggregateFailureStatus reports whether an aggregate status burns the
// availability budget. Caller errors (validation, conflicts, busy) do not.
func isAggregateFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "internal", "unavailable", "invariant_violation", "retryable":
		return true
	default:
		return false
	}
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "error", "timeout", "panic":
		return true
	default:
		return false
	}
}
