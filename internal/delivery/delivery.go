// Package delivery performs the remote effect of a pending action.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kerigma/internal/models"
)

var ErrUnknownType = errors.New("no deliverer registered for action type")

// Deliverer performs one action. A nil error means the action is confirmed
// and must not be retried.
type Deliverer interface {
	Deliver(ctx context.Context, action models.PendingAction) error
}

type Func func(ctx context.Context, action models.PendingAction) error

func (f Func) Deliver(ctx context.Context, action models.PendingAction) error {
	return f(ctx, action)
}

// Router dispatches actions by type, with an optional fallback.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Deliverer
	fallback Deliverer
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Deliverer)}
}

func (r *Router) Handle(actionType string, d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[actionType] = d
}

// Fallback handles every type without an explicit route.
func (r *Router) Fallback(d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = d
}

func (r *Router) Deliver(ctx context.Context, action models.PendingAction) error {
	r.mu.RLock()
	d, ok := r.routes[action.Type]
	if !ok {
		d = r.fallback
	}
	r.mu.RUnlock()

	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownType, action.Type)
	}
	return d.Deliver(ctx, action)
}
