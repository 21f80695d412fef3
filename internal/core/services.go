package core

import "sync"

// services is the registry modules use to publish and discover shared
// collaborators. It is shared by every AppContext derived from the root.
type services struct {
	mu    sync.RWMutex
	items map[string]any
}

func newServices() *services {
	return &services{items: make(map[string]any)}
}

// RegisterService publishes svc under name, replacing any previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// Service returns the service registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// ServiceAs returns the service registered under name when it has type T.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
