package observability

import (
	"math"
	"testing"
	"time"
)

func TestRollingSumEvictsOldest(t *testing.T) {
	r := newRollingSum(3)
	r.add(1)
	r.add(2)
	r.add(3)
	if r.total != 6 {
		t.Fatalf("total = %v, want 6", r.total)
	}
	r.add(4)
	if r.total != 9 {
		t.Fatalf("total after eviction = %v, want 9", r.total)
	}
}

func TestFormatWindowLabel(t *testing.T) {
	for window, want := range map[time.Duration]string{
		720 * time.Hour:   "30d",
		24 * time.Hour:    "1d",
		6 * time.Hour:     "6h",
		30 * time.Minute:  "30m",
		36 * time.Hour:    "36h",
		240 * time.Second: "4m",
	} {
		if got := formatWindowLabel(window); got != want {
			t.Fatalf("formatWindowLabel(%v) = %q, want %q", window, got, want)
		}
	}
}

func sloTestMetrics() *Metrics {
	return &Metrics{
		aggregateTotal:  NewCounter("aq_t", "t"),
		aggregateError:  NewCounter("aq_e", "e"),
		aggregateGood:   NewCounter("aq_g", "g"),
		storeTotal:      NewCounter("aq_st", "st"),
		storeError:      NewCounter("aq_se", "se"),
		sweepRunsTotal:  NewCounter("aq_swt", "swt"),
		sweepRunsError:  NewCounter("aq_swe", "swe"),
		backupRunsTotal: NewCounter("aq_bt", "bt"),
		backupRunsError: NewCounter("aq_be", "be"),
		sloCompliance:   NewGaugeVec("aq_slo_compliance", "c", []string{"slo", "window"}),
		sloBudget:       NewGaugeVec("aq_slo_error_budget_remaining", "b", []string{"slo", "window"}),
		sloBurn:         NewGaugeVec("aq_slo_burn_rate", "r", []string{"slo", "window"}),
	}
}

func TestSLOEvaluatorComputesBurnRates(t *testing.T) {
	t.Setenv("SLO_AGGREGATE_AVAIL_TARGET", "0.999")
	m := sloTestMetrics()
	e := newSLOEvaluator(m, nil)

	m.aggregateTotal.Add(1000)
	m.aggregateError.Add(10)
	m.aggregateGood.Add(990)
	e.evaluate()

	sli := m.sloCompliance.Value("aggregate_availability", e.windowLabel)
	if math.Abs(sli-0.99) > 1e-9 {
		t.Fatalf("aggregate_availability SLI = %v, want 0.99", sli)
	}
	burn := m.sloBurn.Value("aggregate_availability", e.windowLabel)
	if math.Abs(burn-10) > 1e-6 {
		t.Fatalf("aggregate_availability burn = %v, want 10", burn)
	}
	if budget := m.sloBudget.Value("aggregate_availability", e.windowLabel); budget != 0 {
		t.Fatalf("aggregate_availability budget = %v, want 0", budget)
	}

	latencySLI := m.sloCompliance.Value("award_latency", e.windowLabel)
	if math.Abs(latencySLI-0.99) > 1e-9 {
		t.Fatalf("award_latency SLI = %v, want 0.99", latencySLI)
	}
}

func TestSLOEvaluatorIdleSeriesStayHealthy(t *testing.T) {
	m := sloTestMetrics()
	e := newSLOEvaluator(m, nil)
	e.evaluate()

	for _, slo := range []string{"aggregate_availability", "award_latency", "store_availability", "sweep_success", "backup_success"} {
		if got := m.sloCompliance.Value(slo, e.windowLabel); got != 1 {
			t.Fatalf("%s compliance = %v, want 1", slo, got)
		}
		if got := m.sloBurn.Value(slo, e.windowLabel); got != 0 {
			t.Fatalf("%s burn = %v, want 0", slo, got)
		}
	}
}

func TestSLOEvaluatorTracksDeltasAcrossTicks(t *testing.T) {
	m := sloTestMetrics()
	e := newSLOEvaluator(m, nil)

	m.sweepRunsTotal.Add(10)
	e.evaluate()
	m.sweepRunsTotal.Add(10)
	m.sweepRunsError.Add(1)
	e.evaluate()

	sli := m.sloCompliance.Value("sweep_success", e.windowLabel)
	if math.Abs(sli-0.95) > 1e-9 {
		t.Fatalf("sweep_success SLI = %v, want 0.95", sli)
	}
}
