package aggregates

import (
	"context"
	"errors"
	"testing"

	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"gorm.io/gorm"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale guard"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Busy(t *testing.T) {
	err := MapError("op", BusyError("write in flight"))
	if !domainagg.IsCode(err, domainagg.CodeBusy) {
		t.Fatalf("expected busy code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Unavailable(t *testing.T) {
	err := MapError("op", UnavailableError("reads exhausted"))
	if !domainagg.IsCode(err, domainagg.CodeUnavailable) {
		t.Fatalf("expected unavailable code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_UnknownAction(t *testing.T) {
	err := MapError("op", types.ErrUnknownAction)
	if !domainagg.IsCode(err, domainagg.CodeInvalidAction) {
		t.Fatalf("expected invalid_action code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_ChecksumMismatch(t *testing.T) {
	err := MapError("op", types.ErrChecksumMismatch)
	if !domainagg.IsCode(err, domainagg.CodeChecksumMismatch) {
		t.Fatalf("expected checksum_mismatch code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_ContextCancellation(t *testing.T) {
	err := MapError("op", context.Canceled)
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("expected retryable code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_MessageFallbacks(t *testing.T) {
	if err := MapError("op", errors.New("duplicate key value violates unique constraint")); !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate key should map to conflict, got %q", domainagg.CodeOf(err))
	}
	if err := MapError("op", errors.New("deadlock detected")); !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("deadlock should map to retryable, got %q", domainagg.CodeOf(err))
	}
	if err := MapError("op", errors.New("something exploded")); !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("unknown errors should map to internal, got %q", domainagg.CodeOf(err))
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}
