package core

import "strings"

// ModuleID is a dotted module identifier such as "checkpoint.sqlite".
// The part before the first dot is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot, or the whole ID
// when it has no namespace.
func (id ModuleID) Name() string {
	if _, name, ok := strings.Cut(string(id), "."); ok {
		return name
	}
	return string(id)
}

// Module is the unit the App loads and runs. Optional behaviour is added
// by implementing the lifecycle interfaces (Configurable, Provisioner,
// Validator, Starter, Stopper).
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is unique across the registry.
	ID ModuleID

	// New returns a fresh, unconfigured instance.
	New func() Module
}
