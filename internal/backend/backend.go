package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/hpungsan/lspgate/internal/tool"
)

// Backend answers language-intelligence queries. Implementations are
// called without any gate or session lock held.
type Backend interface {
	Invoke(ctx context.Context, kind tool.Kind, args map[string]any) (any, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, kind tool.Kind, args map[string]any) (any, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, kind tool.Kind, args map[string]any) (any, error) {
	return f(ctx, kind, args)
}

// ErrUnavailable marks failures caused by a backend that is not running.
var ErrUnavailable = errors.New("backend unavailable")

// Error is a failed backend call. Detail carries what the backend reported.
type Error struct {
	Kind   tool.Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Router sends each kind to the backend registered for it, falling back
// to a default.
type Router struct {
	routes   map[tool.Kind]Backend
	fallback Backend
}

// NewRouter creates a router that uses fallback for unregistered kinds.
func NewRouter(fallback Backend) *Router {
	return &Router{routes: make(map[tool.Kind]Backend), fallback: fallback}
}

// Handle registers b for kind.
func (r *Router) Handle(kind tool.Kind, b Backend) *Router {
	r.routes[kind] = b
	return r
}

// Invoke implements Backend.
func (r *Router) Invoke(ctx context.Context, kind tool.Kind, args map[string]any) (any, error) {
	b, ok := r.routes[kind]
	if !ok {
		b = r.fallback
	}
	if b == nil {
		return nil, &Error{Kind: kind, Detail: "no backend serves this query"}
	}
	return b.Invoke(ctx, kind, args)
}
