package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope holds one pooled connection for the lifetime of a request or job.
// Repositories read it from the context so a resolution runs all of its
// catalog lookups on the same connection.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool. Safe to call twice.
func (s *Scope) Close() {
	if s == nil || s.Conn == nil {
		return
	}
	s.Conn.Release()
	s.Conn = nil
}

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

type scopeKey struct{}

// GetScope retrieves the connection scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil && scope.Conn != nil
}

// SetScope stores the connection scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFunc yields a context carrying a connection scope and a cleanup
// function that MUST be called.
type ScopeFunc func(ctx context.Context) (context.Context, func(), error)

// NewScopeFunc returns a ScopeFunc backed by db. When the context already
// carries a scope (HTTP middleware set one) it is reused and cleanup is a no-op.
func NewScopeFunc(db *DB) ScopeFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		if _, ok := GetScope(ctx); ok {
			return ctx, func() {}, nil
		}
		scope, err := db.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return SetScope(ctx, scope), scope.Close, nil
	}
}
