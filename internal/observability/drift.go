package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/appquest/appquest-backend/internal/platform/ctxutil"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// IntegrityDriftMetric is one sweep finding that crossed its threshold,
// e.g. the share of scanned profiles that had to be healed.
type IntegrityDriftMetric struct {
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Value     float64        `json:"value"`
	Threshold float64        `json:"threshold"`
	Meta      map[string]any `json:"meta,omitempty"`
}

type driftAlertState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

var driftAlerts driftAlertState

// ReportIntegrityDrift posts a rate-limited alert when a sweep heals or
// fails to read more profiles than the configured thresholds allow. A
// healthy fleet heals nothing; a spike means something upstream is
// writing invalid state.
func ReportIntegrityDrift(ctx context.Context, log *logger.Logger, metrics []IntegrityDriftMetric, meta map[string]any) {
	if len(metrics) == 0 {
		return
	}
	if !parseBoolEnv("INTEGRITY_DRIFT_ALERTS_ENABLED", false) {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			meta["trace_id"] = td.TraceID
		}
		if td.RequestID != "" {
			meta["request_id"] = td.RequestID
		}
	}

	webhook := integrityDriftAlertWebhook()
	if webhook == "" {
		return
	}
	key := "integrity_drift"
	driftAlerts.mu.Lock()
	if driftAlerts.last == nil {
		driftAlerts.last = map[string]time.Time{}
	}
	last := driftAlerts.last[key]
	minInterval := parseDurationSeconds("INTEGRITY_DRIFT_ALERT_MIN_INTERVAL_SECONDS", 600)
	if !last.IsZero() && time.Since(last) < minInterval {
		driftAlerts.mu.Unlock()
		return
	}
	driftAlerts.last[key] = time.Now()
	driftAlerts.mu.Unlock()

	payload := map[string]any{
		"title":     "Profile integrity drift detected",
		"metrics":   metrics,
		"meta":      meta,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		if log != nil {
			log.Warn("integrity drift alert request build failed", "error", err)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if log != nil {
			log.Warn("integrity drift alert post failed", "error", err)
		}
		return
	}
	_ = resp.Body.Close()
	if log != nil {
		log.Info("integrity drift alert sent", "status", resp.StatusCode)
	}
}

func integrityDriftAlertWebhook() string {
	if val := strings.TrimSpace(getEnv("INTEGRITY_DRIFT_ALERT_WEBHOOK_URL")); val != "" {
		return val
	}
	return strings.TrimSpace(getEnv("SLO_ALERT_WEBHOOK_URL"))
}
