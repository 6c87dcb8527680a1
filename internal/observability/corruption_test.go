package observability

import (
	"context"
	"testing"

	"github.com/appquest/appquest-backend/internal/platform/ctxutil"
)

func TestClassifyViolation(t *testing.T) {
	cases := []struct {
		reason string
		issue  string
		field  string
	}{
		{"stored payload does not decode", "undecodable", ""},
		{"xp is negative (-10)", "negative_value", "xp"},
		{`activity counter "quests_completed" is negative (-2)`, "negative_value", "quests_completed"},
		{"current login streak is negative (-1)", "negative_value", "current_login_streak"},
		{"longest login streak is negative (-3)", "negative_value", "longest_login_streak"},
		{"level 3 does not match xp 40 (want 1)", "level_mismatch", "level"},
		{"xp history sum 90 does not match xp 120", "history_sum_mismatch", "xp_history"},
		{"xp history is not sorted by timestamp", "history_order", "xp_history"},
		{`duplicate badge id "xp_100"`, "duplicate_badge", "xp_100"},
		{"profile is nil", "invariant", ""},
	}
	for _, tc := range cases {
		issue, field := classifyViolation(tc.reason)
		if issue != tc.issue || field != tc.field {
			t.Fatalf("classifyViolation(%q) = (%q, %q), want (%q, %q)", tc.reason, issue, field, tc.issue, tc.field)
		}
	}
}

func TestReportCorruptionHandlesMissingPieces(t *testing.T) {
	// No metrics instance, no logger, no meta: must not panic and must
	// no-op on empty input.
	ReportCorruption(context.Background(), nil, "memory", nil, nil)
	ReportCorruption(context.Background(), nil, "", []string{"  "}, nil)
	ReportCorruption(context.Background(), nil, "memory", []string{"xp is negative (-1)"}, nil)
}

func TestReportCorruptionCarriesTraceData(t *testing.T) {
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "trace-1", RequestID: "sweep-9"})
	meta := map[string]any{}
	ReportCorruption(ctx, nil, "postgres", []string{"xp history sum 5 does not match xp 10"}, meta)
	if meta["trace_id"] != "trace-1" {
		t.Fatalf("trace_id = %v, want trace-1", meta["trace_id"])
	}
	if meta["request_id"] != "sweep-9" {
		t.Fatalf("request_id = %v, want sweep-9", meta["request_id"])
	}
}
