// Package tenantscope carries the active tenant identity through the
// dynamic extent of a logical operation.
//
// Go has no implicit task-local storage, so the scope is carried explicitly
// as a context.Context value. Any context derived from a scoped context
// (including ones handed to goroutines spawned from it, or resumed after a
// channel/select suspension) sees the same scope; a context that was never
// derived from it does not.
package tenantscope

import (
	"context"
	"errors"
)

// ErrNoScope is returned by From when no scope is bound to the context.
var ErrNoScope = errors.New("tenantscope: no tenant scope bound to context")

type scopeKey struct{}

// Scope is the value carried for the duration of one logical operation.
type Scope struct {
	// TenantID is the isolation-boundary identifier. Authoritative.
	TenantID string
	// OrganizationID is an optional business-concept passenger; the core
	// never uses it to scope storage access.
	OrganizationID string
}

// With returns a new context with scope bound. It does not mutate ctx.
func With(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// RunWith executes fn with scope bound to a derived context. The scope is
// visible to fn and everything fn calls, and is released (by virtue of not
// escaping the derived context) on every exit path, including panics that
// propagate past fn.
func RunWith[T any](ctx context.Context, scope Scope, fn func(context.Context) (T, error)) (T, error) {
	return fn(With(ctx, scope))
}

// From returns the bound scope, or ErrNoScope if none is bound.
func From(ctx context.Context) (Scope, error) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok {
		return Scope{}, ErrNoScope
	}
	return scope, nil
}

// MustFrom returns the bound scope, panicking if none is bound.
// Reserved for call sites that have already validated a scope is present;
// prefer From at storage/agent boundaries.
func MustFrom(ctx context.Context) Scope {
	scope, err := From(ctx)
	if err != nil {
		panic(err)
	}
	return scope
}

// CurrentTenantID is a convenience over From for the common case.
func CurrentTenantID(ctx context.Context) (string, error) {
	scope, err := From(ctx)
	if err != nil {
		return "", err
	}
	return scope.TenantID, nil
}

// Has is a non-throwing probe for whether a scope is bound.
func Has(ctx context.Context) bool {
	_, err := From(ctx)
	return err == nil
}
