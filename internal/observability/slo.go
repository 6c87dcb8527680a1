package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/appquest/appquest-backend/internal/platform/logger"
)

type rollingSum struct {
	values []float64
	idx    int
	total  float64
}

func newRollingSum(size int) *rollingSum {
	if size < 1 {
		size = 1
	}
	return &rollingSum{values: make([]float64, size)}
}

func (r *rollingSum) add(v float64) {
	r.total += v - r.values[r.idx]
	r.values[r.idx] = v
	r.idx++
	if r.idx >= len(r.values) {
		r.idx = 0
	}
}

// SLOEvaluator tracks rolling error budgets for the engine's five SLOs:
// aggregate availability, award latency, store availability, sweep success
// and backup success.
type SLOEvaluator struct {
	metrics *Metrics
	log     *logger.Logger

	interval    time.Duration
	window      time.Duration
	windowLabel string

	aggregateAvailTarget float64
	awardLatencyTarget   float64
	storeAvailTarget     float64
	sweepSuccessTarget   float64
	backupSuccessTarget  float64

	aggTotal    *rollingSum
	aggError    *rollingSum
	aggGood     *rollingSum
	storeTotal  *rollingSum
	storeError  *rollingSum
	sweepTotal  *rollingSum
	sweepError  *rollingSum
	backupTotal *rollingSum
	backupError *rollingSum

	prevAggTotal    float64
	prevAggError    float64
	prevAggGood     float64
	prevStoreTotal  float64
	prevStoreError  float64
	prevSweepTotal  float64
	prevSweepError  float64
	prevBackupTotal float64
	prevBackupError float64

	alertWebhook     string
	alertOwner       string
	alertRunbook     string
	alertMinInterval time.Duration
	alertBurnWarn    float64
	alertBurnCrit    float64

	alertMu    sync.Mutex
	lastAlerts map[string]time.Time
}

func (m *Metrics) StartSLOEvaluator(ctx context.Context, log *logger.Logger) {
	if m == nil || !parseBoolEnv("SLO_ENABLED", false) {
		return
	}
	eval := newSLOEvaluator(m, log)
	if eval == nil {
		return
	}
	go eval.run(ctx)
	if log != nil {
		log.Info("SLO evaluator started", "window", eval.windowLabel, "interval", eval.interval.String())
	}
}

func newSLOEvaluator(m *Metrics, log *logger.Logger) *SLOEvaluator {
	interval := parseDurationSeconds("SLO_EVAL_INTERVAL_SECONDS", 60)
	windowHours := parseFloatEnv("SLO_WINDOW_HOURS", 720)
	if windowHours < 1 {
		windowHours = 24
	}
	window := time.Duration(windowHours * float64(time.Hour))
	windowLabel := formatWindowLabel(window)
	size := int(window / interval)
	if size < 1 {
		size = 1
	}
	return &SLOEvaluator{
		metrics:              m,
		log:                  log,
		interval:             interval,
		window:               window,
		windowLabel:          windowLabel,
		aggregateAvailTarget: clamp01(parseFloatEnv("SLO_AGGREGATE_AVAIL_TARGET", 0.999)),
		awardLatencyTarget:   clamp01(parseFloatEnv("SLO_AWARD_LATENCY_TARGET", 0.95)),
		storeAvailTarget:     clamp01(parseFloatEnv("SLO_STORE_AVAIL_TARGET", 0.999)),
		sweepSuccessTarget:   clamp01(parseFloatEnv("SLO_SWEEP_SUCCESS_TARGET", 0.98)),
		backupSuccessTarget:  clamp01(parseFloatEnv("SLO_BACKUP_SUCCESS_TARGET", 0.98)),
		aggTotal:             newRollingSum(size),
		aggError:             newRollingSum(size),
		aggGood:              newRollingSum(size),
		storeTotal:           newRollingSum(size),
		storeError:           newRollingSum(size),
		sweepTotal:           newRollingSum(size),
		sweepError:           newRollingSum(size),
		backupTotal:          newRollingSum(size),
		backupError:          newRollingSum(size),
		alertWebhook:         strings.TrimSpace(getEnv("SLO_ALERT_WEBHOOK_URL")),
		alertOwner:           strings.TrimSpace(getEnv("SLO_ALERT_OWNER")),
		alertRunbook:         strings.TrimSpace(getEnv("SLO_ALERT_RUNBOOK_URL")),
		alertMinInterval:     time.Duration(parseFloatEnv("SLO_ALERT_MIN_INTERVAL_SECONDS", 900)) * time.Second,
		alertBurnWarn:        parseFloatEnv("SLO_ALERT_BURN_RATE_WARN", 2),
		alertBurnCrit:        parseFloatEnv("SLO_ALERT_BURN_RATE_CRIT", 10),
		lastAlerts:           map[string]time.Time{},
	}
}

func (e *SLOEvaluator) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evaluate()
		}
	}
}

func (e *SLOEvaluator) evaluate() {
	if e.metrics == nil {
		return
	}
	aggTotal := e.metrics.aggregateTotal.Value()
	aggError := e.metrics.aggregateError.Value()
	aggGood := e.metrics.aggregateGood.Value()
	storeTotal := e.metrics.storeTotal.Value()
	storeError := e.metrics.storeError.Value()
	sweepTotal := e.metrics.sweepRunsTotal.Value()
	sweepError := e.metrics.sweepRunsError.Value()
	backupTotal := e.metrics.backupRunsTotal.Value()
	backupError := e.metrics.backupRunsError.Value()

	e.aggTotal.add(delta(aggTotal, e.prevAggTotal))
	e.aggError.add(delta(aggError, e.prevAggError))
	e.aggGood.add(delta(aggGood, e.prevAggGood))
	e.storeTotal.add(delta(storeTotal, e.prevStoreTotal))
	e.storeError.add(delta(storeError, e.prevStoreError))
	e.sweepTotal.add(delta(sweepTotal, e.prevSweepTotal))
	e.sweepError.add(delta(sweepError, e.prevSweepError))
	e.backupTotal.add(delta(backupTotal, e.prevBackupTotal))
	e.backupError.add(delta(backupError, e.prevBackupError))

	e.prevAggTotal = aggTotal
	e.prevAggError = aggError
	e.prevAggGood = aggGood
	e.prevStoreTotal = storeTotal
	e.prevStoreError = storeError
	e.prevSweepTotal = sweepTotal
	e.prevSweepError = sweepError
	e.prevBackupTotal = backupTotal
	e.prevBackupError = backupError

	e.evalSLO("aggregate_availability", e.aggTotal.total, e.aggError.total, e.aggregateAvailTarget)
	e.evalSLO("award_latency", e.aggTotal.total, e.aggTotal.total-e.aggGood.total, e.awardLatencyTarget)
	e.evalSLO("store_availability", e.storeTotal.total, e.storeError.total, e.storeAvailTarget)
	e.evalSLO("sweep_success", e.sweepTotal.total, e.sweepError.total, e.sweepSuccessTarget)
	e.evalSLO("backup_success", e.backupTotal.total, e.backupError.total, e.backupSuccessTarget)
}

func (e *SLOEvaluator) evalSLO(name string, total float64, bad float64, target float64) {
	if total <= 0 {
		e.metrics.sloCompliance.Set(1, name, e.windowLabel)
		e.metrics.sloBudget.Set(1, name, e.windowLabel)
		e.metrics.sloBurn.Set(0, name, e.windowLabel)
		return
	}
	sli := clamp01(1 - bad/total)
	burn := 0.0
	if target < 1 {
		burn = (1 - sli) / (1 - target)
	}
	budget := clamp01(1 - burn)
	e.metrics.sloCompliance.Set(sli, name, e.windowLabel)
	e.metrics.sloBudget.Set(budget, name, e.windowLabel)
	e.metrics.sloBurn.Set(burn, name, e.windowLabel)

	if e.alertWebhook == "" || e.alertOwner == "" {
		return
	}
	severity := ""
	if burn >= e.alertBurnCrit {
		severity = "critical"
	} else if burn >= e.alertBurnWarn {
		severity = "warning"
	}
	if severity == "" {
		return
	}
	key := name + ":" + severity
	e.alertMu.Lock()
	last := e.lastAlerts[key]
	if !last.IsZero() && time.Since(last) < e.alertMinInterval {
		e.alertMu.Unlock()
		return
	}
	e.lastAlerts[key] = time.Now()
	e.alertMu.Unlock()
	e.sendAlert(name, severity, sli, target, burn, budget)
}

func (e *SLOEvaluator) sendAlert(name, severity string, sli, target, burn, budget float64) {
	payload := map[string]any{
		"title":                  "SLO burn rate alert",
		"severity":               severity,
		"owner":                  e.alertOwner,
		"slo":                    name,
		"window":                 e.windowLabel,
		"sli":                    sli,
		"target":                 target,
		"burn_rate":              burn,
		"error_budget_remaining": budget,
		"runbook":                e.alertRunbook,
		"timestamp":              time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, e.alertWebhook, bytes.NewReader(body))
	if err != nil {
		if e.log != nil {
			e.log.Warn("slo alert request build failed", "error", err, "slo", name)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if e.log != nil {
			e.log.Warn("slo alert post failed", "error", err, "slo", name)
		}
		return
	}
	_ = resp.Body.Close()
	if e.log != nil {
		e.log.Info("slo alert sent", "slo", name, "severity", severity, "status", resp.StatusCode)
	}
}

func delta(current, prev float64) float64 {
	if current < prev {
		return current
	}
	return current - prev
}

func parseDurationSeconds(key string, def int) time.Duration {
	raw := strings.TrimSpace(getEnv(key))
	if raw == "" {
		return time.Duration(def) * time.Second
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return time.Duration(def) * time.Second
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatWindowLabel(window time.Duration) string {
	hours := window.Hours()
	if hours >= 24 && mathMod(hours, 24) == 0 {
		return strconv.Itoa(int(hours/24)) + "d"
	}
	if hours >= 1 {
		return strconv.Itoa(int(hours)) + "h"
	}
	return strconv.Itoa(int(window.Minutes())) + "m"
}

func mathMod(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a - float64(int(a/b))*b
}
