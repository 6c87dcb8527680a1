package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/appquest/appquest-backend/internal/platform/ctxutil"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

var quotedFieldRe = regexp.MustCompile(`"([^"]+)"`)

type corruptionAlertState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

var corruptionAlerts corruptionAlertState

// ReportCorruption classifies the integrity violations behind one audited
// profile reset, feeds the corruption counters and, when configured, posts
// a rate-limited alert to the operations webhook. Reasons are the messages
// produced by profile validation, plus "stored payload does not decode"
// from the read path.
func ReportCorruption(ctx context.Context, log *logger.Logger, backend string, reasons []string, meta map[string]any) {
	if len(reasons) == 0 {
		return
	}
	backend = strings.TrimSpace(backend)
	if backend == "" {
		backend = "unknown"
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

	issueCounts := map[string]int{}
	sampleReasons := make([]string, 0, 3)
	for _, reason := range reasons {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			continue
		}
		if len(sampleReasons) < 3 {
			sampleReasons = append(sampleReasons, reason)
		}
		issue, field := classifyViolation(reason)
		incCorruption(backend, issue, field)
		issueCounts[issue]++
	}
	if len(issueCounts) == 0 {
		return
	}

	if log != nil {
		log.Warn("profile corruption detected",
			"backend", backend,
			"issues", issueCounts,
			"sample_reasons", sampleReasons,
			"meta", meta,
		)
	}
	sendCorruptionAlert(backend, issueCounts, sampleReasons, meta, log)
}

// classifyViolation maps a validation message onto a stable issue label
// and, where one is identifiable, the offending field.
func classifyViolation(reason string) (string, string) {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "does not decode"):
		return "undecodable", ""
	case strings.Contains(lower, "history sum"):
		return "history_sum_mismatch", "xp_history"
	case strings.Contains(lower, "not sorted"):
		return "history_order", "xp_history"
	case strings.Contains(lower, "duplicate badge"):
		return "duplicate_badge", quotedField(reason)
	case strings.Contains(lower, "negative"):
		return "negative_value", negativeField(lower, reason)
	case strings.Contains(lower, "level"):
		return "level_mismatch", "level"
	default:
		return "invariant", ""
	}
}

func negativeField(lower, raw string) string {
	switch {
	case strings.HasPrefix(lower, "xp is negative"):
		return "xp"
	case strings.Contains(lower, "activity counter"):
		return quotedField(raw)
	case strings.Contains(lower, "current login streak"):
		return "current_login_streak"
	case strings.Contains(lower, "longest login streak"):
		return "longest_login_streak"
	default:
		return ""
	}
}

func quotedField(reason string) string {
	if match := quotedFieldRe.FindStringSubmatch(reason); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

func incCorruption(backend, issue, field string) {
	metrics := Current()
	if metrics == nil {
		return
	}
	metrics.IncProfileCorruption(backend, issue, field)
}

func corruptionAlertWebhook() string {
	if val := strings.TrimSpace(getEnv("CORRUPTION_ALERT_WEBHOOK_URL")); val != "" {
		return val
	}
	return strings.TrimSpace(getEnv("SLO_ALERT_WEBHOOK_URL"))
}

func sendCorruptionAlert(backend string, issueCounts map[string]int, sampleReasons []string, meta map[string]any, log *logger.Logger) {
	if !parseBoolEnv("CORRUPTION_ALERTS_ENABLED", false) {
		return
	}
	webhook := corruptionAlertWebhook()
	if webhook == "" || len(issueCounts) == 0 {
		return
	}
	key := backend
	corruptionAlerts.mu.Lock()
	if corruptionAlerts.last == nil {
		corruptionAlerts.last = map[string]time.Time{}
	}
	last := corruptionAlerts.last[key]
	minInterval := parseDurationSeconds("CORRUPTION_ALERT_MIN_INTERVAL_SECONDS", 300)
	if !last.IsZero() && time.Since(last) < minInterval {
		corruptionAlerts.mu.Unlock()
		return
	}
	corruptionAlerts.last[key] = time.Now()
	corruptionAlerts.mu.Unlock()

	payload := map[string]any{
		"title":          "Profile corruption detected",
		"backend":        backend,
		"issues":         issueCounts,
		"sample_reasons": sampleReasons,
		"meta":           meta,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		if log != nil {
			log.Warn("corruption alert request build failed", "error", err, "backend", backend)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		if log != nil {
			log.Warn("corruption alert post failed", "error", err, "backend", backend)
		}
		return
	}
	_ = resp.Body.Close()
	if log != nil {
		log.Info("corruption alert sent", "backend", backend, "status", resp.StatusCode)
	}
}
