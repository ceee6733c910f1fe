package tenancy

import (
	"context"
	"testing"
)

func TestWithCallerAndCallerFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithCaller(ctx, Caller{TenantID: "tenant-123", UserID: "user-9"})

	got, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatalf("expected caller to be present")
	}
	if got.TenantID != "tenant-123" || got.UserID != "user-9" {
		t.Fatalf("unexpected caller: %+v", got)
	}
}

func TestCallerFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("expected missing caller to return false")
	}

	ctx = context.WithValue(ctx, callerKey, 42)
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("expected non-Caller value to return false")
	}

	ctx = WithCaller(context.Background(), Caller{UserID: "user-only"})
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("expected tenantless caller to return false")
	}
}

func TestCallerValidate(t *testing.T) {
	if err := (Caller{TenantID: "t1"}).Validate(); err != nil {
		t.Fatalf("expected valid caller, got %v", err)
	}
	if err := (Caller{TenantID: "  "}).Validate(); err == nil {
		t.Fatalf("expected blank tenant to fail validation")
	}
}
