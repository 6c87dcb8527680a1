package aggregates

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

type BaseDeps struct {
	Log   *logger.Logger
	Hooks Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Log == nil {
		d.Log = &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// executeOperation is the shared shell around every aggregate operation:
// one span, one timing observation, and MapError classification of
// whatever the operation body returns. The body runs against the stores
// directly; conditional writes own their atomicity.
func executeOperation(ctx context.Context, deps BaseDeps, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.operation"
	}

	ctx, span := otel.Tracer("aggregates").Start(ctx, op)
	defer span.End()

	err := fn(ctx)
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = aggregateErrorStatus(mapped)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, status)
		if domainagg.IsCode(mapped, domainagg.CodeConflict) {
			deps.Hooks.IncConflict(op)
		}
		if domainagg.IsCode(mapped, domainagg.CodeRetryable) {
			deps.Hooks.IncRetry(op)
		}
	}
	span.SetAttributes(attribute.String("aggregate.status", status))
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
