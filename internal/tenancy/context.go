package tenancy

import (
	"context"
	"errors"
	"strings"
)

// Caller identifies who is performing a core operation. Every service
// operation takes a Caller explicitly; the core never falls back to a
// default tenant or user identity.
type Caller struct {
	TenantID string
	UserID   string
}

// ErrMissingTenant indicates a core operation was invoked without a tenant.
var ErrMissingTenant = errors.New("tenancy: tenant id is required")

// Validate rejects callers without a tenant id. UserID may be empty for
// system-initiated operations (e.g. migrations, workers).
func (c Caller) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return ErrMissingTenant
	}
	return nil
}

type ctxKey string

const callerKey ctxKey = "innervoice.caller"

// WithCaller stores the caller identity in context for transport layers.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the caller if present and tenant-scoped.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	val := ctx.Value(callerKey)
	if val == nil {
		return Caller{}, false
	}
	caller, ok := val.(Caller)
	return caller, ok && caller.TenantID != ""
}

// RequireCaller extracts the caller or fails with ErrMissingTenant.
func RequireCaller(ctx context.Context) (Caller, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return Caller{}, ErrMissingTenant
	}
	return caller, nil
}
